package monitor

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestErrorCode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("Unknown", errorCode(""))
	assert.Equal("insufficient funds", errorCode("insufficient funds: have 1 want 2"))
	assert.Equal("upkeep not needed balance", errorCode("upkeep not needed balance=0 players=0"))
	assert.Len(errorCode(strings.Repeat("x", 200)), maxErrorCodeLen)
}

func TestToEther(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, toEther(nil))
	assert.Equal(1.5, toEther(big.NewInt(1_500_000_000_000_000_000)))
	assert.InDelta(0.01, toEther(big.NewInt(10_000_000_000_000_000)), 1e-12)
}

func lastValue(t *testing.T, name string) float64 {
	rows, err := view.RetrieveData(name)
	require.Nil(t, err)
	require.Len(t, rows, 1)
	data, ok := rows[0].Data.(*view.LastValueData)
	require.True(t, ok)
	return data.Value
}

func countWithTag(t *testing.T, name, value string) int64 {
	rows, err := view.RetrieveData(name)
	require.Nil(t, err)
	for _, row := range rows {
		for _, tg := range row.Tags {
			if tg.Value == value {
				return row.Data.(*view.CountData).Value
			}
		}
	}
	return 0
}

func TestCensusRaffleCycle(t *testing.T) {
	assert := assert.New(t)

	InitCensus("raffle", "testid", "testversion")
	require.NotNil(t, Exporter)

	RaffleEntered(1, big.NewInt(10_000_000_000_000_000))
	RaffleEntered(2, big.NewInt(20_000_000_000_000_000))
	assert.Equal(2.0, lastValue(t, "raffle_players"))
	assert.InDelta(0.02, lastValue(t, "raffle_balance_eth"), 1e-12)

	UpkeepChecked("IntervalNotElapsed")
	UpkeepChecked("IntervalNotElapsed")
	UpkeepChecked("None")
	assert.Equal(int64(2), countWithTag(t, "upkeep_checks_total", "IntervalNotElapsed"))
	assert.Equal(int64(1), countWithTag(t, "upkeep_checks_total", "None"))

	RaffleStateChanged(1)
	assert.Equal(1.0, lastValue(t, "raffle_state"))
	CalculatingDuration(3 * time.Second)
	assert.Equal(3.0, lastValue(t, "calculating_duration_seconds"))

	RandomnessFulfilled("rejected")
	RandomnessFulfilled("accepted")
	assert.Equal(int64(1), countWithTag(t, "randomness_fulfilled_total", "rejected"))

	PayoutFailed("transfer reverted: out of gas")
	assert.Equal(int64(1), countWithTag(t, "payout_failed_total", "transfer reverted"))

	SnapshotSaveFailed("database is locked: busy")
	assert.Equal(int64(1), countWithTag(t, "snapshot_save_errors_total", "database is locked"))

	WinnerPicked(big.NewInt(20_000_000_000_000_000), 5*time.Second)
	assert.Equal(0.0, lastValue(t, "raffle_players"))
	assert.Equal(0.0, lastValue(t, "raffle_balance_eth"))
	assert.InDelta(0.02, lastValue(t, "winner_prize_eth"), 1e-12)

	rows, err := view.RetrieveData("cycle_latency_seconds")
	require.Nil(t, err)
	require.Len(t, rows, 1)
	assert.Equal(int64(1), rows[0].Data.(*view.DistributionData).Count)
}
