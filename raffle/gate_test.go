package raffle

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0)

func TestIntervalGate(t *testing.T) {
	assert := assert.New(t)

	g := NewIntervalGate(30*time.Second, t0)
	assert.Equal(30*time.Second, g.Interval())
	assert.Equal(t0, g.LastTimestamp())

	assert.False(g.HasElapsed(t0))
	assert.False(g.HasElapsed(t0.Add(29 * time.Second)))
	// the boundary counts as elapsed
	assert.True(g.HasElapsed(t0.Add(30 * time.Second)))
	assert.Equal(31*time.Second, g.Elapsed(t0.Add(31*time.Second)))

	g.MarkSettled(t0.Add(31 * time.Second))
	assert.False(g.HasElapsed(t0.Add(60 * time.Second)))
	assert.True(g.HasElapsed(t0.Add(61 * time.Second)))
}

func TestIntervalGate_ZeroInterval(t *testing.T) {
	g := NewIntervalGate(0, t0)
	assert.True(t, g.HasElapsed(t0))
}

func TestEvaluateUpkeep(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(big.NewInt(10))
	g := NewIntervalGate(30*time.Second, t0)
	later := t0.Add(30 * time.Second)

	check := evaluateUpkeep(Open, g, l, t0)
	assert.False(check.Needed)
	assert.Equal(ReasonIntervalNotElapsed, check.Reason)

	check = evaluateUpkeep(Open, g, l, later)
	assert.False(check.Needed)
	assert.Equal(ReasonNoPlayers, check.Reason)
	assert.Equal(30*time.Second, check.Elapsed)
	assert.Equal(30*time.Second, check.Interval)

	require.Nil(t, l.Enter(playerA, big.NewInt(10)))
	check = evaluateUpkeep(Open, g, l, later)
	assert.True(check.Needed)
	assert.Equal(ReasonNone, check.Reason)
	assert.Equal(1, check.NumPlayers)
	assert.Equal(big.NewInt(10), check.Balance)
	assert.Nil(check.err())

	// state is checked before anything else
	check = evaluateUpkeep(Calculating, g, l, later)
	assert.False(check.Needed)
	assert.Equal(ReasonNotOpen, check.Reason)

	err := check.err()
	var upkeepErr *UpkeepNotNeededError
	require.ErrorAs(t, err, &upkeepErr)
	assert.Equal(Calculating, upkeepErr.State)
	assert.Equal(1, upkeepErr.NumPlayers)
	assert.Equal(big.NewInt(10), upkeepErr.Balance)
	assert.Equal("upkeep not needed balance=10 players=1 state=1 reason=NotOpen", err.Error())
}

func TestEvaluateUpkeep_ZeroBalance(t *testing.T) {
	l := NewLedger(big.NewInt(0))
	require.Nil(t, l.Enter(playerA, big.NewInt(0)))
	g := NewIntervalGate(0, t0)

	check := evaluateUpkeep(Open, g, l, t0)
	assert.False(t, check.Needed)
	assert.Equal(t, ReasonNoBalance, check.Reason)
}
