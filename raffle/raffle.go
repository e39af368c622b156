package raffle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
	"github.com/livepeer/go-raffle/monitor"
)

var (
	errMissingProvider    = errors.New("missing randomness provider")
	errMissingPayer       = errors.New("missing payer")
	errInvalidEntranceFee = errors.New("entrance fee must be non-negative")
	errInvalidInterval    = errors.New("interval must be non-negative")
)

// Config contains the immutable parameters of a raffle
type Config struct {
	// Address identifies this raffle instance to the randomness provider
	Address ethcommon.Address

	EntranceFee *big.Int
	Interval    time.Duration

	// KeyHash is the provider gas lane
	KeyHash          ethcommon.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
}

// Raffle is the state machine that owns the ledger, the interval gate and the
// randomness coordinator of a single pool. All mutating operations are serialised,
// which makes checking the state and acting on it a single atomic step
type Raffle struct {
	addr  ethcommon.Address
	clock Clock
	store Store

	mu           sync.Mutex
	state        State
	ledger       *Ledger
	gate         *IntervalGate
	coord        *RandomnessCoordinator
	selector     *WinnerSelector
	recentWinner ethcommon.Address

	feeds feeds
}

// NewRaffle creates a raffle in the Open state. If store holds a snapshot the
// raffle resumes from it, including any pending randomness request
func NewRaffle(cfg Config, provider RandomnessProvider, payer Payer, clock Clock, store Store) (*Raffle, error) {
	if provider == nil {
		return nil, errMissingProvider
	}
	if payer == nil {
		return nil, errMissingPayer
	}
	if cfg.EntranceFee == nil || cfg.EntranceFee.Sign() < 0 {
		return nil, errInvalidEntranceFee
	}
	if cfg.Interval < 0 {
		return nil, errInvalidInterval
	}
	if clock == nil {
		clock = SystemClock
	}

	r := &Raffle{
		addr:   cfg.Address,
		clock:  clock,
		store:  store,
		state:  Open,
		ledger: NewLedger(cfg.EntranceFee),
		gate:   NewIntervalGate(cfg.Interval, clock.Now()),
		coord: NewRandomnessCoordinator(provider, CoordinatorConfig{
			Consumer:         cfg.Address,
			KeyHash:          cfg.KeyHash,
			SubscriptionID:   cfg.SubscriptionID,
			CallbackGasLimit: cfg.CallbackGasLimit,
		}),
		selector: NewWinnerSelector(payer),
	}

	if store != nil {
		snap, err := store.LoadSnapshot()
		if err != nil {
			return nil, err
		}
		if snap != nil {
			if err := r.restore(snap); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Raffle) restore(snap *Snapshot) error {
	if snap.EntranceFee == nil || snap.EntranceFee.Cmp(r.ledger.EntranceFee()) != 0 {
		return fmt.Errorf("saved entrance fee %v does not match configured entrance fee %v", snap.EntranceFee, r.ledger.EntranceFee())
	}
	if snap.Interval != r.gate.Interval() {
		return fmt.Errorf("saved interval %v does not match configured interval %v", snap.Interval, r.gate.Interval())
	}
	switch {
	case snap.State == Calculating && snap.Pending == nil:
		return fmt.Errorf("saved state is %v without a pending request", snap.State)
	case snap.State == Calculating && len(snap.Players) == 0:
		return fmt.Errorf("saved state is %v without players", snap.State)
	case snap.State == Open && snap.Pending != nil:
		return fmt.Errorf("saved state is %v with pending request %v", snap.State, snap.Pending.ID)
	}

	balance := snap.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}

	r.state = snap.State
	r.ledger.restore(snap.Players, balance)
	r.gate.MarkSettled(snap.LastTimestamp)
	r.coord.restore(snap.Pending)
	r.recentWinner = snap.RecentWinner

	glog.Infof("Restored raffle state=%v players=%v balance=%v lastTimestamp=%v", r.state, r.ledger.NumPlayers(), balance, snap.LastTimestamp.Unix())

	return nil
}

// Enter adds player to the current cycle
func (r *Raffle) Enter(ctx context.Context, player ethcommon.Address, amount *big.Int) error {
	ctx = clog.AddPlayer(ctx, player.Hex())

	ev, err := r.enter(player, amount)
	if err != nil {
		clog.V(5).Infof(ctx, "Rejected raffle entry amount=%v err=%q", amount, err)
		return err
	}

	clog.V(4).Infof(ctx, "Recorded raffle entry amount=%v players=%v", amount, ev.NumPlayers)
	r.feeds.entryFeed.Send(ev)

	return nil
}

func (r *Raffle) enter(player ethcommon.Address, amount *big.Int) (*EntryRecorded, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Open {
		return nil, ErrNotOpen
	}

	if err := r.ledger.Enter(player, amount); err != nil {
		return nil, err
	}

	r.persist()

	if monitor.Enabled {
		monitor.RaffleEntered(r.ledger.NumPlayers(), r.ledger.Balance())
	}

	return &EntryRecorded{
		Player:     player,
		Amount:     new(big.Int).Set(amount),
		NumPlayers: r.ledger.NumPlayers(),
	}, nil
}

// CheckUpkeep reports whether a new cycle may start now
func (r *Raffle) CheckUpkeep() UpkeepCheck {
	return r.CheckUpkeepAt(r.clock.Now())
}

// CheckUpkeepAt reports whether a new cycle may start at the given time
func (r *Raffle) CheckUpkeepAt(now time.Time) UpkeepCheck {
	r.mu.Lock()
	defer r.mu.Unlock()

	check := evaluateUpkeep(r.state, r.gate, r.ledger, now)

	if monitor.Enabled {
		monitor.UpkeepChecked(check.Reason.String())
	}

	return check
}

// PerformUpkeep starts a new cycle: it moves the raffle to Calculating and requests
// randomness. It fails with an *UpkeepNotNeededError if a cycle may not start.
// If the provider refuses the request the raffle is left as it was before the call
func (r *Raffle) PerformUpkeep(ctx context.Context) (*big.Int, error) {
	ev, err := r.performUpkeep(ctx)
	if err != nil {
		clog.V(5).Infof(ctx, "Upkeep not performed err=%q", err)
		return nil, err
	}

	ctx = clog.AddRequestID(ctx, ev.RequestID.String())
	clog.Infof(ctx, "Requested raffle winner")
	r.feeds.requestFeed.Send(ev)

	return new(big.Int).Set(ev.RequestID), nil
}

func (r *Raffle) performUpkeep(ctx context.Context) (*WinnerRequested, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	check := evaluateUpkeep(r.state, r.gate, r.ledger, now)
	if !check.Needed {
		return nil, check.err()
	}

	prevTimestamp := r.gate.LastTimestamp()

	if err := r.transition(Calculating); err != nil {
		return nil, err
	}
	r.gate.MarkSettled(now)

	id, err := r.coord.BeginRequest(ctx, now)
	if err != nil {
		r.rollbackCycleStart(prevTimestamp)

		if monitor.Enabled {
			monitor.RandomnessRequestError(err.Error())
		}

		return nil, err
	}

	if err := r.persist(); err != nil {
		// A restarted node would not know the request. Its fulfillment is rejected
		r.coord.abandon()
		r.rollbackCycleStart(prevTimestamp)
		return nil, fmt.Errorf("%w requestID=%v: %v", ErrSnapshotNotSaved, id, err)
	}

	if monitor.Enabled {
		monitor.UpkeepPerformed()
	}

	return &WinnerRequested{
		RequestID: id,
		Timestamp: now,
	}, nil
}

func (r *Raffle) rollbackCycleStart(prevTimestamp time.Time) {
	r.gate.MarkSettled(prevTimestamp)
	if err := r.transition(Open); err != nil {
		glog.Errorf("Error rolling back cycle start err=%q", err)
	}
}

// FulfillRandomWords is called by the randomness provider with the words for a request.
// It selects the winner, pays out the pool and reopens the raffle. A request id
// that is not pending is rejected with ErrUnknownRequestID
func (r *Raffle) FulfillRandomWords(ctx context.Context, requestID *big.Int, words []*big.Int) error {
	if requestID != nil {
		ctx = clog.AddRequestID(ctx, requestID.String())
	}

	r.mu.Lock()
	randomness, err := r.coord.Fulfill(requestID, words)
	if err != nil {
		r.mu.Unlock()

		clog.Warningf(ctx, "Rejected randomness fulfillment err=%q", err)
		if monitor.Enabled {
			monitor.RandomnessFulfilled("rejected")
		}
		return err
	}

	if monitor.Enabled {
		monitor.RandomnessFulfilled("accepted")
	}

	return r.settleAndUnlock(ctx, requestID, randomness)
}

// RetryPayout re-drives a cycle whose randomness was delivered but whose payout failed.
// The pinned randomness is reused so the same winner is selected
func (r *Raffle) RetryPayout(ctx context.Context) error {
	r.mu.Lock()

	pending := r.coord.Pending()
	if pending == nil {
		r.mu.Unlock()
		return ErrUnknownRequestID
	}
	if pending.Randomness == nil {
		r.mu.Unlock()
		return ErrNoRandomness
	}

	ctx = clog.AddRequestID(ctx, pending.ID.String())
	clog.Infof(ctx, "Retrying raffle payout")

	return r.settleAndUnlock(ctx, pending.ID, pending.Randomness)
}

// settleAndUnlock pays the winner and completes the cycle.
// It must be called with r.mu held and releases it before sending notifications
func (r *Raffle) settleAndUnlock(ctx context.Context, requestID, randomness *big.Int) error {
	var prev *PayoutTx
	if pending := r.coord.Pending(); pending != nil {
		prev = pending.Payout
	}
	broadcast := func(tx *PayoutTx) {
		clog.V(5).Infof(ctx, "Recorded payout broadcast nonce=%v txs=%v", tx.Nonce, len(tx.Hashes))
		r.coord.RecordPayout(tx)
		r.persist()
	}

	winner, amount, err := r.selector.SelectAndPayout(ctx, randomness, r.ledger, prev, broadcast)
	if err != nil {
		// Keep the pinned randomness so the cycle can be retried after a restart
		r.persist()
		r.mu.Unlock()

		if errors.Is(err, ErrNoPlayers) {
			clog.Errorf(ctx, "Invariant violated, randomness fulfilled for a cycle without players")
			return err
		}

		clog.Errorf(ctx, "Error paying out raffle winner=%v amount=%v err=%q", winner.Hex(), amount, err)
		if monitor.Enabled {
			monitor.PayoutFailed(err.Error())
		}
		r.feeds.payoutFailedFeed.Send(&PayoutFailed{
			RequestID: new(big.Int).Set(requestID),
			Winner:    winner,
			Amount:    amount,
			Err:       err,
		})
		return err
	}

	pending := r.coord.Pending()
	if err := r.coord.Complete(requestID); err != nil {
		// The pending request was validated under the same lock
		r.mu.Unlock()
		return err
	}

	now := r.clock.Now()
	r.ledger.Reset()
	if err := r.transition(Open); err != nil {
		glog.Errorf("Error reopening raffle err=%q", err)
	}
	r.recentWinner = winner
	r.persist()

	ev := &WinnerPicked{
		RequestID: new(big.Int).Set(requestID),
		Winner:    winner,
		Amount:    amount,
		Timestamp: now,
	}
	if r.store != nil {
		if err := r.store.RecordWinner(ev); err != nil {
			glog.Errorf("Error recording raffle winner=%v requestID=%v err=%q", winner.Hex(), requestID, err)
		}
	}
	r.mu.Unlock()

	if monitor.Enabled && pending != nil {
		monitor.WinnerPicked(amount, now.Sub(pending.RequestedAt))
	}

	clog.Infof(ctx, "Picked raffle winner=%v amount=%v", winner.Hex(), amount)
	r.feeds.winnerFeed.Send(ev)

	return nil
}

// transition moves the raffle to next if the transition table allows it
func (r *Raffle) transition(next State) error {
	if !r.state.canTransition(next) {
		return fmt.Errorf("invalid raffle state transition from=%v to=%v", r.state, next)
	}

	glog.V(5).Infof("Raffle state transition from=%v to=%v", r.state, next)
	r.state = next

	if monitor.Enabled {
		monitor.RaffleStateChanged(int(next))
	}

	return nil
}

// persist saves the current state. Only PerformUpkeep fails on an error, other
// callers rely on the log and the metric
func (r *Raffle) persist() error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveSnapshot(r.snapshot()); err != nil {
		glog.Errorf("Error saving raffle snapshot state=%v err=%q", r.state, err)
		if monitor.Enabled {
			monitor.SnapshotSaveFailed(err.Error())
		}
		return err
	}
	return nil
}

func (r *Raffle) snapshot() *Snapshot {
	return &Snapshot{
		Address:       r.addr,
		State:         r.state,
		EntranceFee:   r.ledger.EntranceFee(),
		Interval:      r.gate.Interval(),
		Players:       r.ledger.Players(),
		Balance:       r.ledger.Balance(),
		LastTimestamp: r.gate.LastTimestamp(),
		RecentWinner:  r.recentWinner,
		Pending:       r.coord.Pending(),
	}
}

// Snapshot returns a consistent copy of the raffle state
func (r *Raffle) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Address returns the address identifying this raffle to the randomness provider
func (r *Raffle) Address() ethcommon.Address {
	return r.addr
}

// State returns the current state
func (r *Raffle) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// EntranceFee returns the fee required to enter
func (r *Raffle) EntranceFee() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.EntranceFee()
}

// Interval returns the minimum time between cycle starts
func (r *Raffle) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gate.Interval()
}

// Player returns the player at index i of the current cycle
func (r *Raffle) Player(i int) (ethcommon.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.PlayerAt(i)
}

// Players returns the players of the current cycle in entry order
func (r *Raffle) Players() []ethcommon.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Players()
}

// NumPlayers returns the number of entries in the current cycle
func (r *Raffle) NumPlayers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.NumPlayers()
}

// Balance returns the pool balance
func (r *Raffle) Balance() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Balance()
}

// LatestTimestamp returns the time the last cycle started
func (r *Raffle) LatestTimestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gate.LastTimestamp()
}

// RecentWinner returns the winner of the last completed cycle
func (r *Raffle) RecentWinner() ethcommon.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recentWinner
}

// RandomWordsRequest returns the request this raffle sends to its provider when a cycle starts
func (r *Raffle) RandomWordsRequest() *RandomWordsRequest {
	return r.coord.newRequest()
}

// PendingRequest returns a copy of the in-flight randomness request or nil
func (r *Raffle) PendingRequest() *PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coord.Pending()
}

// Close unsubscribes all notification subscribers
func (r *Raffle) Close() {
	r.feeds.scope.Close()
}
