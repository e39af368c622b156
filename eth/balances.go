package eth

import (
	"context"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/livepeer/go-raffle/raffle"
)

// BalanceBook is an in-memory payer used when no Ethereum node is
// configured. Transfers credit the recipient's balance
type BalanceBook struct {
	mu       sync.Mutex
	balances map[ethcommon.Address]*big.Int
	paid     *big.Int
}

var _ raffle.Payer = (*BalanceBook)(nil)

func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[ethcommon.Address]*big.Int),
		paid:     big.NewInt(0),
	}
}

func (b *BalanceBook) Transfer(ctx context.Context, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTransferAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.balances[to]
	if !ok {
		bal = big.NewInt(0)
		b.balances[to] = bal
	}
	bal.Add(bal, amount)
	b.paid.Add(b.paid, amount)

	return nil
}

// BalanceOf returns a copy of the amount credited to addr
func (b *BalanceBook) BalanceOf(addr ethcommon.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalPaid returns the sum of all transfers
func (b *BalanceBook) TotalPaid() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return new(big.Int).Set(b.paid)
}
