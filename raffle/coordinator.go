package raffle

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	// requestConfirmations is the number of blocks the provider waits before responding
	requestConfirmations uint16 = 3
	// numWords is the number of random words requested per cycle
	numWords uint32 = 1
)

// RandomWordsRequest describes a request for randomness sent to a provider
type RandomWordsRequest struct {
	// Consumer is the address the provider delivers the random words to
	Consumer ethcommon.Address

	// KeyHash selects the gas lane, i.e. the maximum gas price the provider will pay to respond
	KeyHash ethcommon.Hash

	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
}

// RandomnessProvider is an interface which describes an external source of randomness.
// A provider accepts a request synchronously and returns its id. The random words
// are delivered later by calling FulfillRandomWords on the consumer. A provider must
// never deliver from within RequestRandomWords
type RandomnessProvider interface {
	RequestRandomWords(ctx context.Context, req *RandomWordsRequest) (*big.Int, error)
}

// Consumer is implemented by anything that can receive random words from a provider
type Consumer interface {
	FulfillRandomWords(ctx context.Context, requestID *big.Int, words []*big.Int) error
}

// CoordinatorConfig contains the provider subscription details used for every request
type CoordinatorConfig struct {
	Consumer         ethcommon.Address
	KeyHash          ethcommon.Hash
	SubscriptionID   uint64
	CallbackGasLimit uint32
}

// PendingRequest is the single in-flight randomness request
type PendingRequest struct {
	ID          *big.Int  `json:"id"`
	RequestedAt time.Time `json:"requestedAt"`

	// Randomness is the first value delivered for this request.
	// It stays pinned until the cycle completes so a re-delivery
	// after a failed payout selects the same winner
	Randomness *big.Int `json:"randomness,omitempty"`

	// Payout records the transactions broadcast to pay this cycle's winner
	Payout *PayoutTx `json:"payout,omitempty"`
}

func (p *PendingRequest) copy() *PendingRequest {
	if p == nil {
		return nil
	}
	cp := &PendingRequest{
		ID:          new(big.Int).Set(p.ID),
		RequestedAt: p.RequestedAt,
	}
	if p.Randomness != nil {
		cp.Randomness = new(big.Int).Set(p.Randomness)
	}
	cp.Payout = p.Payout.copy()
	return cp
}

// RandomnessCoordinator issues randomness requests and correlates fulfillments
// with the request that is in flight. It is not safe for concurrent use
type RandomnessCoordinator struct {
	provider RandomnessProvider
	cfg      CoordinatorConfig

	pending *PendingRequest
}

// NewRandomnessCoordinator creates a coordinator with no request in flight
func NewRandomnessCoordinator(provider RandomnessProvider, cfg CoordinatorConfig) *RandomnessCoordinator {
	return &RandomnessCoordinator{
		provider: provider,
		cfg:      cfg,
	}
}

// BeginRequest asks the provider for randomness and tracks the returned request id
func (c *RandomnessCoordinator) BeginRequest(ctx context.Context, now time.Time) (*big.Int, error) {
	if c.pending != nil {
		return nil, ErrRequestInFlight
	}

	id, err := c.provider.RequestRandomWords(ctx, c.newRequest())
	if err != nil {
		return nil, &ProviderError{RequestedAt: now, err: err}
	}

	c.pending = &PendingRequest{
		ID:          new(big.Int).Set(id),
		RequestedAt: now,
	}

	return new(big.Int).Set(id), nil
}

func (c *RandomnessCoordinator) newRequest() *RandomWordsRequest {
	return &RandomWordsRequest{
		Consumer:             c.cfg.Consumer,
		KeyHash:              c.cfg.KeyHash,
		SubscriptionID:       c.cfg.SubscriptionID,
		RequestConfirmations: requestConfirmations,
		CallbackGasLimit:     c.cfg.CallbackGasLimit,
		NumWords:             numWords,
	}
}

// Fulfill validates that requestID is the pending request and returns the random value
// to select a winner with. The request stays pending until Complete is called
func (c *RandomnessCoordinator) Fulfill(requestID *big.Int, words []*big.Int) (*big.Int, error) {
	if !c.isPending(requestID) {
		return nil, ErrUnknownRequestID
	}

	if c.pending.Randomness == nil {
		if len(words) == 0 || words[0] == nil {
			return nil, ErrNoRandomWords
		}
		c.pending.Randomness = new(big.Int).Set(words[0])
	}

	return new(big.Int).Set(c.pending.Randomness), nil
}

// Complete clears the pending request once its cycle has paid out.
// Any later delivery for the same id is rejected
func (c *RandomnessCoordinator) Complete(requestID *big.Int) error {
	if !c.isPending(requestID) {
		return ErrUnknownRequestID
	}
	c.pending = nil
	return nil
}

// RecordPayout attaches a broadcast payout to the pending request
func (c *RandomnessCoordinator) RecordPayout(tx *PayoutTx) {
	if c.pending != nil {
		c.pending.Payout = tx.copy()
	}
}

// abandon drops the pending request. A later delivery for it is rejected
func (c *RandomnessCoordinator) abandon() {
	c.pending = nil
}

// Pending returns a copy of the in-flight request or nil
func (c *RandomnessCoordinator) Pending() *PendingRequest {
	return c.pending.copy()
}

func (c *RandomnessCoordinator) isPending(requestID *big.Int) bool {
	return c.pending != nil && requestID != nil && c.pending.ID.Cmp(requestID) == 0
}

func (c *RandomnessCoordinator) restore(p *PendingRequest) {
	c.pending = p.copy()
}
