package raffle

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Payer transfers funds out of the pool
type Payer interface {
	Transfer(ctx context.Context, to ethcommon.Address, amount *big.Int) error
}

// PayoutTx records the transactions broadcast for one payout. They all use the same
// nonce, so at most one of them is mined
type PayoutTx struct {
	Nonce  uint64           `json:"nonce"`
	Hashes []ethcommon.Hash `json:"hashes"`
}

func (t *PayoutTx) copy() *PayoutTx {
	if t == nil {
		return nil
	}
	return &PayoutTx{
		Nonce:  t.Nonce,
		Hashes: append([]ethcommon.Hash(nil), t.Hashes...),
	}
}

// TxPayer is a Payer whose transfer can still be mined after TransferTx returned an error.
// prev is the record of earlier attempts for the same payout, nil on the first attempt.
// broadcast is called with the updated record every time a transaction is sent so the
// caller can persist it before waiting for the transaction to be mined
type TxPayer interface {
	Payer
	TransferTx(ctx context.Context, to ethcommon.Address, amount *big.Int, prev *PayoutTx, broadcast func(*PayoutTx)) error
}

// WinnerSelector picks a winner from the ledger using a random value and pays out the pool
type WinnerSelector struct {
	payer Payer
}

// NewWinnerSelector creates a selector that pays out with payer
func NewWinnerSelector(payer Payer) *WinnerSelector {
	return &WinnerSelector{payer: payer}
}

// winnerIndex returns randomness mod numPlayers
func winnerIndex(randomness *big.Int, numPlayers int) int {
	idx := new(big.Int).Mod(randomness, big.NewInt(int64(numPlayers)))
	return int(idx.Int64())
}

// SelectAndPayout transfers the full ledger balance to the selected winner.
// The ledger is not modified, the caller resets it once the transfer succeeded.
// prev and broadcast are passed on to a TxPayer and ignored by other payers
func (s *WinnerSelector) SelectAndPayout(ctx context.Context, randomness *big.Int, ledger *Ledger, prev *PayoutTx, broadcast func(*PayoutTx)) (ethcommon.Address, *big.Int, error) {
	n := ledger.NumPlayers()
	if n == 0 {
		return ethcommon.Address{}, nil, ErrNoPlayers
	}

	winner, err := ledger.PlayerAt(winnerIndex(randomness, n))
	if err != nil {
		return ethcommon.Address{}, nil, err
	}

	amount := ledger.Balance()
	if err := s.transfer(ctx, winner, amount, prev, broadcast); err != nil {
		return winner, amount, newPayoutError(winner, amount, err)
	}

	return winner, amount, nil
}

func (s *WinnerSelector) transfer(ctx context.Context, to ethcommon.Address, amount *big.Int, prev *PayoutTx, broadcast func(*PayoutTx)) error {
	if p, ok := s.payer.(TxPayer); ok {
		if broadcast == nil {
			broadcast = func(*PayoutTx) {}
		}
		return p.TransferTx(ctx, to, amount, prev, broadcast)
	}
	return s.payer.Transfer(ctx, to, amount)
}
