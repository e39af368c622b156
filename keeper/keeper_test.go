package keeper

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/mock/gomock"
	"github.com/livepeer/go-raffle/common"
	"github.com/livepeer/go-raffle/raffle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var t0 = time.Unix(1700000000, 0)

func zeroBackOff(t *testing.T) {
	old := newBackOff
	newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() { newBackOff = old })
}

func TestKeeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, common.IgnoreRoutines()...)
	assert := assert.New(t)

	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	target.EXPECT().CheckUpkeep().Return(raffle.UpkeepCheck{Reason: raffle.ReasonNoPlayers, State: raffle.Open}).AnyTimes()

	k := NewKeeper(target, nil, 10*time.Millisecond, 0, 0)
	assert.Equal(ErrKeeperStopped, k.Stop())

	errC := make(chan error)
	go func() { errC <- k.Start(context.Background()) }()
	require.Eventually(t, k.IsWorking, time.Second, 5*time.Millisecond)
	assert.Equal(ErrKeeperStarted, k.Start(context.Background()))

	assert.Nil(k.Stop())
	assert.Nil(<-errC)
	assert.False(k.IsWorking())
}

func TestKeeper_UpkeepNotNeeded(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	target.EXPECT().CheckUpkeep().Return(raffle.UpkeepCheck{Reason: raffle.ReasonIntervalNotElapsed, State: raffle.Open}).Times(2)

	k := NewKeeper(target, nil, time.Second, 3, time.Minute)
	assert.Nil(t, k.tryUpkeep(context.Background()))
	assert.Nil(t, k.tryUpkeep(context.Background()))

	// the second identical check is not logged again
	_, found := k.logCache.Get(raffle.ReasonIntervalNotElapsed.String())
	assert.True(t, found)
}

func TestKeeper_PerformsUpkeep(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	gomock.InOrder(
		target.EXPECT().CheckUpkeep().Return(raffle.UpkeepCheck{Needed: true}),
		target.EXPECT().PerformUpkeep(gomock.Any()).Return(big.NewInt(1), nil),
	)

	k := NewKeeper(target, nil, time.Second, 3, 0)
	assert.Nil(t, k.tryUpkeep(context.Background()))
}

func TestKeeper_RetriesProviderErrors(t *testing.T) {
	zeroBackOff(t)

	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	providerErr := &raffle.ProviderError{RequestedAt: t0}
	gomock.InOrder(
		target.EXPECT().CheckUpkeep().Return(raffle.UpkeepCheck{Needed: true}),
		target.EXPECT().PerformUpkeep(gomock.Any()).Return(nil, providerErr).Times(2),
		target.EXPECT().PerformUpkeep(gomock.Any()).Return(big.NewInt(4), nil),
	)

	k := NewKeeper(target, nil, time.Second, 3, 0)
	assert.Nil(t, k.tryUpkeep(context.Background()))
}

func TestKeeper_GivesUpAfterMaxRetries(t *testing.T) {
	zeroBackOff(t)

	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	providerErr := &raffle.ProviderError{RequestedAt: t0}
	target.EXPECT().CheckUpkeep().Return(raffle.UpkeepCheck{Needed: true})
	// first attempt plus two retries
	target.EXPECT().PerformUpkeep(gomock.Any()).Return(nil, providerErr).Times(3)

	k := NewKeeper(target, nil, time.Second, 2, 0)
	err := k.tryUpkeep(context.Background())
	assert.Equal(t, raffle.ClassProvider, raffle.Classify(err))
}

func TestKeeper_DoesNotRetryOtherErrors(t *testing.T) {
	zeroBackOff(t)

	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	target.EXPECT().CheckUpkeep().Return(raffle.UpkeepCheck{Needed: true}).Times(2)

	// lost the race to another caller
	notNeeded := &raffle.UpkeepNotNeededError{Balance: big.NewInt(0), State: raffle.Calculating, Reason: raffle.ReasonNotOpen}
	target.EXPECT().PerformUpkeep(gomock.Any()).Return(nil, notNeeded)
	k := NewKeeper(target, nil, time.Second, 3, 0)
	assert.Nil(t, k.tryUpkeep(context.Background()))

	boom := errors.New("boom")
	target.EXPECT().PerformUpkeep(gomock.Any()).Return(nil, boom)
	assert.Equal(t, boom, k.tryUpkeep(context.Background()))
}

func TestKeeper_ReportsStuckCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := NewMockUpkeepTarget(ctrl)
	clock := raffle.NewStubClock(t0)
	check := raffle.UpkeepCheck{Reason: raffle.ReasonNotOpen, State: raffle.Calculating}
	target.EXPECT().CheckUpkeep().Return(check).Times(2)
	target.EXPECT().PendingRequest().Return(&raffle.PendingRequest{ID: big.NewInt(9), RequestedAt: t0}).Times(2)

	k := NewKeeper(target, clock, time.Second, 3, time.Minute)

	clock.Advance(30 * time.Second)
	assert.Nil(t, k.tryUpkeep(context.Background()))
	_, found := k.logCache.Get("stuck-9")
	assert.False(t, found)

	clock.Advance(time.Minute)
	assert.Nil(t, k.tryUpkeep(context.Background()))
	_, found = k.logCache.Get("stuck-9")
	assert.True(t, found)
}

func TestKeeper_DrivesRaffle(t *testing.T) {
	defer goleak.VerifyNone(t, common.IgnoreRoutines()...)
	require := require.New(t)

	provider := &raffle.StubProvider{}
	r, err := raffle.NewRaffle(raffle.Config{
		Address:     ethcommon.HexToAddress("0x01"),
		EntranceFee: big.NewInt(10),
		Interval:    0,
	}, provider, &raffle.StubPayer{}, nil, nil)
	require.Nil(err)
	defer r.Close()

	k := NewKeeper(r, nil, 5*time.Millisecond, 3, 0)
	errC := make(chan error)
	go func() { errC <- k.Start(context.Background()) }()

	// nothing to do without players
	time.Sleep(30 * time.Millisecond)
	require.Equal(0, provider.NumRequests())

	require.Nil(r.Enter(context.Background(), ethcommon.HexToAddress("0x02"), big.NewInt(10)))
	require.Eventually(func() bool { return r.State() == raffle.Calculating }, time.Second, 5*time.Millisecond)

	// one cycle at a time
	time.Sleep(30 * time.Millisecond)
	require.Equal(1, provider.NumRequests())

	require.Nil(k.Stop())
	require.Nil(<-errC)
}
