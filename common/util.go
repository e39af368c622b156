package common

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// glog verbosity levels
const (
	SHORT   = 4
	DEBUG   = 5
	VERBOSE = 6
)

// HTTPTimeout timeout used in HTTP connections to the node
var HTTPTimeout = 8 * time.Second

var (
	ErrParseBigInt  = fmt.Errorf("failed to parse big integer")
	ErrParseEther   = fmt.Errorf("failed to parse ether amount")
	ErrParseAddress = fmt.Errorf("invalid hex address")
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func ParseBigInt(num string) (*big.Int, error) {
	bigNum := new(big.Int)
	_, ok := bigNum.SetString(num, 10)

	if !ok {
		return nil, ErrParseBigInt
	} else {
		return bigNum, nil
	}
}

// ParseAddress parses a 0x prefixed hex address
func ParseAddress(addr string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(addr) {
		return ethcommon.Address{}, errors.Wrapf(ErrParseAddress, "address=%v", addr)
	}
	return ethcommon.HexToAddress(addr), nil
}

// ParseEther converts a decimal ether amount such as "0.01" to wei.
// Plain integers with a "wei" suffix are taken as wei.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if strings.HasSuffix(amount, "wei") {
		return ParseBigInt(strings.TrimSpace(strings.TrimSuffix(amount, "wei")))
	}
	amount = strings.TrimSpace(strings.TrimSuffix(amount, "ETH"))
	rat, ok := new(big.Rat).SetString(amount)
	if !ok || rat.Sign() < 0 {
		return nil, errors.Wrapf(ErrParseEther, "amount=%v", amount)
	}
	rat.Mul(rat, new(big.Rat).SetInt(weiPerEther))
	if !rat.IsInt() {
		return nil, errors.Wrapf(ErrParseEther, "amount=%v has more than 18 decimals", amount)
	}
	return new(big.Int).Set(rat.Num()), nil
}

// FormatWei renders a wei amount in ether with the raw wei value alongside
func FormatWei(wei *big.Int) string {
	if wei == nil {
		return "0 ETH"
	}
	eth := new(big.Float).Quo(new(big.Float).SetInt(wei), new(big.Float).SetInt(weiPerEther))
	return fmt.Sprintf("%v ETH (%v wei)", eth.Text('f', -1), humanize.BigComma(wei))
}

func ToInt64(val *big.Int) int64 {
	if val == nil || !val.IsInt64() {
		return 0
	}
	return val.Int64()
}
