package keeper

//go:generate mockgen -source keeper.go -destination mock_keeper_test.go -package keeper

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
	"github.com/livepeer/go-raffle/monitor"
	"github.com/livepeer/go-raffle/raffle"
	cache "github.com/patrickmn/go-cache"
)

var (
	ErrKeeperStarted = fmt.Errorf("keeper already started")
	ErrKeeperStopped = fmt.Errorf("keeper already stopped")
)

// identical log lines are suppressed for this long
var logSuppressionTTL = 5 * time.Minute

var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	return b
}

// UpkeepTarget is the raffle as seen by the keeper
type UpkeepTarget interface {
	CheckUpkeep() raffle.UpkeepCheck
	PerformUpkeep(ctx context.Context) (*big.Int, error)
	PendingRequest() *raffle.PendingRequest
}

// Keeper polls the raffle and starts a new cycle whenever upkeep is needed. Randomness
// requests refused by the provider are retried with exponential backoff.
type Keeper struct {
	target       UpkeepTarget
	clock        raffle.Clock
	pollInterval time.Duration
	maxRetries   uint64
	stuckAfter   time.Duration
	logCache     *cache.Cache

	working      bool
	cancelWorker context.CancelFunc
	mu           sync.Mutex
}

// NewKeeper creates a keeper. A cycle that has waited on randomness for longer than
// stuckAfter is logged as stuck; zero disables the warning.
func NewKeeper(target UpkeepTarget, clock raffle.Clock, pollInterval time.Duration, maxRetries uint64, stuckAfter time.Duration) *Keeper {
	if clock == nil {
		clock = raffle.SystemClock
	}
	return &Keeper{
		target:       target,
		clock:        clock,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
		stuckAfter:   stuckAfter,
		logCache:     cache.New(logSuppressionTTL, 2*logSuppressionTTL),
	}
}

func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.working {
		k.mu.Unlock()
		return ErrKeeperStarted
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	k.cancelWorker = cancel
	k.working = true
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.working = false
		k.mu.Unlock()
	}()

	ticker := time.NewTicker(k.pollInterval)
	defer ticker.Stop()

	glog.Infof("Starting raffle keeper pollInterval=%v", k.pollInterval)
	for {
		select {
		case <-ticker.C:
			if err := k.tryUpkeep(cancelCtx); err != nil {
				glog.Errorf("Error performing raffle upkeep err=%q", err)
			}
		case <-cancelCtx.Done():
			glog.V(5).Infof("Raffle keeper done")
			return nil
		}
	}
}

func (k *Keeper) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.working {
		return ErrKeeperStopped
	}

	k.cancelWorker()
	k.working = false

	return nil
}

func (k *Keeper) IsWorking() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.working
}

func (k *Keeper) tryUpkeep(ctx context.Context) error {
	check := k.target.CheckUpkeep()
	if !check.Needed {
		k.logOnce(check.Reason.String(), func() {
			glog.V(5).Infof("Upkeep not needed reason=%v players=%v balance=%v elapsed=%v interval=%v",
				check.Reason, check.NumPlayers, check.Balance, check.Elapsed, check.Interval)
		})
		k.reportCalculating(check.State)
		return nil
	}

	var requestID *big.Int
	op := func() error {
		id, err := k.target.PerformUpkeep(ctx)
		if err == nil {
			requestID = id
			return nil
		}
		if raffle.Classify(err) == raffle.ClassProvider {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		glog.Warningf("Randomness request failed, retrying in %v err=%q", next, err)
		if monitor.Enabled {
			monitor.UpkeepRetried()
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), k.maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		// Another caller may have started the cycle between the check and the perform
		if raffle.Classify(err) == raffle.ClassEligibility {
			glog.V(5).Infof("Upkeep no longer needed err=%q", err)
			return nil
		}
		return err
	}

	clog.V(4).Infof(clog.AddRequestID(ctx, requestID.String()), "Keeper started raffle cycle")
	return nil
}

func (k *Keeper) reportCalculating(state raffle.State) {
	var pending *raffle.PendingRequest
	if state == raffle.Calculating {
		pending = k.target.PendingRequest()
	}
	if pending == nil {
		if monitor.Enabled {
			monitor.CalculatingDuration(0)
		}
		return
	}

	waiting := k.clock.Now().Sub(pending.RequestedAt)
	if monitor.Enabled {
		monitor.CalculatingDuration(waiting)
	}
	if k.stuckAfter <= 0 || waiting < k.stuckAfter {
		return
	}

	status := "awaiting randomness"
	if pending.Randomness != nil {
		status = "awaiting payout retry"
	}
	k.logOnce("stuck-"+pending.ID.String(), func() {
		glog.Warningf("Raffle cycle stuck requestID=%v waiting=%v status=%q", pending.ID, waiting, status)
	})
}

// logOnce runs log unless the same key was logged within the suppression TTL
func (k *Keeper) logOnce(key string, log func()) {
	if _, found := k.logCache.Get(key); found {
		return
	}
	k.logCache.SetDefault(key, struct{}{})
	log()
}
