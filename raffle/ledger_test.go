package raffle

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	playerA = ethcommon.HexToAddress("0xA")
	playerB = ethcommon.HexToAddress("0xB")
	playerC = ethcommon.HexToAddress("0xC")
)

func TestLedger_Enter(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(big.NewInt(10))

	assert.Equal(ErrInsufficientFee, l.Enter(playerA, big.NewInt(9)))
	assert.Equal(ErrInsufficientFee, l.Enter(playerA, nil))
	assert.Equal(0, l.NumPlayers())
	assert.Equal(big.NewInt(0), l.Balance())

	// exact fee, overpayment and repeated entries are all accepted
	assert.Nil(l.Enter(playerA, big.NewInt(10)))
	assert.Nil(l.Enter(playerB, big.NewInt(25)))
	assert.Nil(l.Enter(playerA, big.NewInt(10)))

	assert.Equal(3, l.NumPlayers())
	assert.Equal(big.NewInt(45), l.Balance())
	assert.Equal([]ethcommon.Address{playerA, playerB, playerA}, l.Players())
}

func TestLedger_ZeroFee(t *testing.T) {
	l := NewLedger(big.NewInt(0))
	assert.Nil(t, l.Enter(playerA, big.NewInt(0)))
	assert.Equal(t, 1, l.NumPlayers())
	assert.Equal(t, 0, l.Balance().Sign())
}

func TestLedger_PlayerAt(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(big.NewInt(1))
	_, err := l.PlayerAt(0)
	assert.Equal(ErrIndexOutOfRange, err)

	require.Nil(t, l.Enter(playerA, big.NewInt(1)))
	require.Nil(t, l.Enter(playerB, big.NewInt(1)))

	p, err := l.PlayerAt(1)
	assert.Nil(err)
	assert.Equal(playerB, p)

	_, err = l.PlayerAt(2)
	assert.Equal(ErrIndexOutOfRange, err)
	_, err = l.PlayerAt(-1)
	assert.Equal(ErrIndexOutOfRange, err)
}

func TestLedger_ResetAndCopies(t *testing.T) {
	assert := assert.New(t)

	fee := big.NewInt(10)
	l := NewLedger(fee)
	// the fee is copied at construction
	fee.SetInt64(1000)
	assert.Equal(big.NewInt(10), l.EntranceFee())

	require.Nil(t, l.Enter(playerA, big.NewInt(10)))

	// returned values do not alias ledger internals
	l.Balance().SetInt64(999)
	l.EntranceFee().SetInt64(999)
	players := l.Players()
	players[0] = playerC
	assert.Equal(big.NewInt(10), l.Balance())
	assert.Equal(big.NewInt(10), l.EntranceFee())
	p, _ := l.PlayerAt(0)
	assert.Equal(playerA, p)

	l.Reset()
	assert.Equal(0, l.NumPlayers())
	assert.Equal(big.NewInt(0), l.Balance())
	assert.Empty(l.Players())
	assert.Equal(big.NewInt(10), l.EntranceFee())
}

func TestLedger_BalanceIsSumOfAcceptedEntries(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fee := rapid.Int64Range(0, 1000).Draw(t, "fee")
		amounts := rapid.SliceOf(rapid.Int64Range(0, 2000)).Draw(t, "amounts")

		l := NewLedger(big.NewInt(fee))
		expected := big.NewInt(0)
		accepted := 0
		for i, amt := range amounts {
			err := l.Enter(ethcommon.BigToAddress(big.NewInt(int64(i))), big.NewInt(amt))
			if amt < fee {
				if err != ErrInsufficientFee {
					t.Fatalf("expected ErrInsufficientFee for amount=%v fee=%v got %v", amt, fee, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			expected.Add(expected, big.NewInt(amt))
			accepted++
		}

		if l.Balance().Cmp(expected) != 0 {
			t.Fatalf("balance %v != sum of accepted entries %v", l.Balance(), expected)
		}
		if l.NumPlayers() != accepted {
			t.Fatalf("players %v != accepted entries %v", l.NumPlayers(), accepted)
		}
		// balance >= numPlayers * fee
		floor := new(big.Int).Mul(big.NewInt(fee), big.NewInt(int64(accepted)))
		if l.Balance().Cmp(floor) < 0 {
			t.Fatalf("balance %v below players*fee %v", l.Balance(), floor)
		}
	})
}
