package vrf

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var wordArgs abi.Arguments

func init() {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	wordArgs = abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}}
}

// RandomWords derives n deterministic words for a request as keccak256(abi.encode(requestID, i))
func RandomWords(requestID *big.Int, n uint32) ([]*big.Int, error) {
	words := make([]*big.Int, 0, n)
	for i := uint32(0); i < n; i++ {
		packed, err := wordArgs.Pack(requestID, new(big.Int).SetUint64(uint64(i)))
		if err != nil {
			return nil, err
		}
		words = append(words, new(big.Int).SetBytes(crypto.Keccak256(packed)))
	}
	return words, nil
}
