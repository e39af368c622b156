package raffle

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Ledger holds the players and the accumulated entrance fees of the current cycle.
// A player may appear more than once if they entered more than once.
// Ledger is not safe for concurrent use, the owning Raffle serialises access
type Ledger struct {
	entranceFee *big.Int

	players []ethcommon.Address
	balance *big.Int
}

// NewLedger creates an empty ledger with an immutable entrance fee
func NewLedger(entranceFee *big.Int) *Ledger {
	return &Ledger{
		entranceFee: new(big.Int).Set(entranceFee),
		balance:     big.NewInt(0),
	}
}

// Enter appends a player and adds the paid amount to the balance
func (l *Ledger) Enter(player ethcommon.Address, paid *big.Int) error {
	if paid == nil || paid.Cmp(l.entranceFee) < 0 {
		return ErrInsufficientFee
	}

	l.players = append(l.players, player)
	l.balance.Add(l.balance, paid)

	return nil
}

// PlayerAt returns the player at position i in entry order
func (l *Ledger) PlayerAt(i int) (ethcommon.Address, error) {
	if i < 0 || i >= len(l.players) {
		return ethcommon.Address{}, ErrIndexOutOfRange
	}
	return l.players[i], nil
}

// Reset clears the players and the balance
func (l *Ledger) Reset() {
	l.players = nil
	l.balance = big.NewInt(0)
}

// EntranceFee returns the fee required to enter
func (l *Ledger) EntranceFee() *big.Int {
	return new(big.Int).Set(l.entranceFee)
}

// Balance returns a copy of the accumulated balance
func (l *Ledger) Balance() *big.Int {
	return new(big.Int).Set(l.balance)
}

// NumPlayers returns the number of entries in the current cycle
func (l *Ledger) NumPlayers() int {
	return len(l.players)
}

// Players returns a copy of the players in entry order
func (l *Ledger) Players() []ethcommon.Address {
	players := make([]ethcommon.Address, len(l.players))
	copy(players, l.players)
	return players
}

// restore replaces the ledger contents with persisted values
func (l *Ledger) restore(players []ethcommon.Address, balance *big.Int) {
	l.players = make([]ethcommon.Address, len(players))
	copy(l.players, players)
	l.balance = new(big.Int).Set(balance)
}
