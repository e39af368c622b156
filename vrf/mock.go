package vrf

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
	"github.com/livepeer/go-raffle/raffle"
)

const maxNumWords = 500

var (
	// BaseFee is the flat LINK premium charged per fulfillment
	BaseFee = new(big.Int).Div(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), big.NewInt(4))
	// GasPriceLink is the LINK charged per unit of callback gas
	GasPriceLink = big.NewInt(1e9)
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidConsumer     = errors.New("invalid consumer")
	ErrNonexistentRequest  = errors.New("nonexistent request")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidNumWords     = errors.New("invalid number of words")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrConsumerRejected    = errors.New("consumer rejected random words")
)

// ConsumerError is returned when the consumer failed to process delivered words.
// The request is consumed all the same
type ConsumerError struct {
	RequestID *big.Int
	Consumer  ethcommon.Address
	err       error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("%v requestID=%v consumer=%v err=%q", ErrConsumerRejected, e.RequestID, e.Consumer.Hex(), e.err)
}

// Is reports ErrConsumerRejected so callers can tell a consumer failure from a provider failure
func (e *ConsumerError) Is(target error) bool {
	return target == ErrConsumerRejected
}

// Unwrap returns the consumer's error
func (e *ConsumerError) Unwrap() error {
	return e.err
}

// Subscription is a copy of a funded subscription and its consumers
type Subscription struct {
	ID        uint64
	Owner     ethcommon.Address
	Balance   *big.Int
	Consumers []ethcommon.Address
}

type subscription struct {
	owner     ethcommon.Address
	balance   *big.Int
	consumers map[ethcommon.Address]raffle.Consumer
	order     []ethcommon.Address
}

type request struct {
	subID            uint64
	consumer         ethcommon.Address
	callbackGasLimit uint32
	numWords         uint32
}

// MockCoordinator is an in-process stand-in for the verifiable randomness coordinator used on
// local networks. Requests are recorded and only delivered by an explicit call to
// FulfillRandomWords, typically driven by an AutoFulfiller.
type MockCoordinator struct {
	mu            sync.Mutex
	baseFee       *big.Int
	gasPriceLink  *big.Int
	lastSubID     uint64
	lastRequestID *big.Int
	subs          map[uint64]*subscription
	requests      map[string]*request

	feeds feeds
}

func NewMockCoordinator(baseFee, gasPriceLink *big.Int) *MockCoordinator {
	return &MockCoordinator{
		baseFee:       new(big.Int).Set(baseFee),
		gasPriceLink:  new(big.Int).Set(gasPriceLink),
		lastRequestID: big.NewInt(0),
		subs:          make(map[uint64]*subscription),
		requests:      make(map[string]*request),
	}
}

// CreateSubscription creates an empty subscription. Ids start at 1.
func (m *MockCoordinator) CreateSubscription(owner ethcommon.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSubID++
	m.subs[m.lastSubID] = &subscription{
		owner:     owner,
		balance:   big.NewInt(0),
		consumers: make(map[ethcommon.Address]raffle.Consumer),
	}
	glog.V(5).Infof("Created randomness subscription subId=%v owner=%v", m.lastSubID, owner.Hex())
	return m.lastSubID
}

// CreateSubscriptionWithID creates an empty subscription with a fixed id, mirroring a
// subscription that already exists upstream. Later ids are numbered after it
func (m *MockCoordinator) CreateSubscriptionWithID(subID uint64, owner ethcommon.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[subID]; ok || subID == 0 {
		return ErrInvalidSubscription
	}
	m.subs[subID] = &subscription{
		owner:     owner,
		balance:   big.NewInt(0),
		consumers: make(map[ethcommon.Address]raffle.Consumer),
	}
	if subID > m.lastSubID {
		m.lastSubID = subID
	}
	glog.V(5).Infof("Created randomness subscription subId=%v owner=%v", subID, owner.Hex())
	return nil
}

func (m *MockCoordinator) FundSubscription(subID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[subID]
	if !ok {
		return ErrInvalidSubscription
	}
	sub.balance.Add(sub.balance, amount)
	glog.V(5).Infof("Funded randomness subscription subId=%v amount=%v balance=%v", subID, amount, sub.balance)
	return nil
}

// AddConsumer authorizes addr to request randomness against subID. Fulfillments for its
// requests are delivered to c.
func (m *MockCoordinator) AddConsumer(subID uint64, addr ethcommon.Address, c raffle.Consumer) error {
	if c == nil {
		return ErrInvalidConsumer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[subID]
	if !ok {
		return ErrInvalidSubscription
	}
	if _, ok := sub.consumers[addr]; !ok {
		sub.order = append(sub.order, addr)
	}
	sub.consumers[addr] = c
	return nil
}

func (m *MockCoordinator) GetSubscription(subID uint64) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[subID]
	if !ok {
		return nil, ErrInvalidSubscription
	}
	return &Subscription{
		ID:        subID,
		Owner:     sub.owner,
		Balance:   new(big.Int).Set(sub.balance),
		Consumers: append([]ethcommon.Address(nil), sub.order...),
	}, nil
}

// RequestRandomWords records a request and returns its id. The words are not delivered here.
func (m *MockCoordinator) RequestRandomWords(ctx context.Context, req *raffle.RandomWordsRequest) (*big.Int, error) {
	if req.NumWords == 0 || req.NumWords > maxNumWords {
		return nil, ErrInvalidNumWords
	}

	m.mu.Lock()
	sub, ok := m.subs[req.SubscriptionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrInvalidSubscription
	}
	if _, ok := sub.consumers[req.Consumer]; !ok {
		m.mu.Unlock()
		return nil, ErrInvalidConsumer
	}
	m.lastRequestID = new(big.Int).Add(m.lastRequestID, big.NewInt(1))
	id := new(big.Int).Set(m.lastRequestID)
	m.requests[id.String()] = &request{
		subID:            req.SubscriptionID,
		consumer:         req.Consumer,
		callbackGasLimit: req.CallbackGasLimit,
		numWords:         req.NumWords,
	}
	m.mu.Unlock()

	ctx = clog.AddVal(clog.AddRequestID(ctx, id.String()), "subID", strconv.FormatUint(req.SubscriptionID, 10))
	clog.V(5).Infof(ctx, "Randomness requested consumer=%v numWords=%v", req.Consumer.Hex(), req.NumWords)

	m.feeds.requestedFeed.Send(&RandomWordsRequested{
		KeyHash:          req.KeyHash,
		RequestID:        new(big.Int).Set(id),
		SubscriptionID:   req.SubscriptionID,
		MinConfirmations: req.RequestConfirmations,
		CallbackGasLimit: req.CallbackGasLimit,
		NumWords:         req.NumWords,
		Sender:           req.Consumer,
	})
	return id, nil
}

// FulfillRandomWords delivers the deterministic words for a pending request
func (m *MockCoordinator) FulfillRandomWords(ctx context.Context, requestID *big.Int) error {
	return m.FulfillRandomWordsWithOverride(ctx, requestID, nil)
}

// FulfillRandomWordsWithOverride delivers words to the consumer of a pending request. When
// words is empty the deterministic words are derived from the request id. The subscription
// is charged the base fee plus the callback gas limit priced in LINK, and the request is
// consumed even if the consumer rejects the words. A rejection is returned as a *ConsumerError.
func (m *MockCoordinator) FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, words []*big.Int) error {
	if requestID == nil {
		return ErrNonexistentRequest
	}
	ctx = clog.AddRequestID(ctx, requestID.String())

	m.mu.Lock()
	req, ok := m.requests[requestID.String()]
	if !ok {
		m.mu.Unlock()
		return ErrNonexistentRequest
	}
	sub, ok := m.subs[req.subID]
	if !ok {
		m.mu.Unlock()
		return ErrInvalidSubscription
	}
	payment := new(big.Int).Mul(m.gasPriceLink, new(big.Int).SetUint64(uint64(req.callbackGasLimit)))
	payment.Add(payment, m.baseFee)
	if sub.balance.Cmp(payment) < 0 {
		m.mu.Unlock()
		return ErrInsufficientBalance
	}
	sub.balance.Sub(sub.balance, payment)
	delete(m.requests, requestID.String())
	consumer := sub.consumers[req.consumer]
	m.mu.Unlock()

	if len(words) == 0 {
		var err error
		words, err = RandomWords(requestID, req.numWords)
		if err != nil {
			return err
		}
	}

	var cerr error
	if err := consumer.FulfillRandomWords(ctx, new(big.Int).Set(requestID), words); err != nil {
		clog.Warningf(ctx, "Consumer rejected random words consumer=%v err=%q", req.consumer.Hex(), err)
		cerr = &ConsumerError{
			RequestID: new(big.Int).Set(requestID),
			Consumer:  req.consumer,
			err:       err,
		}
	}

	m.feeds.fulfilledFeed.Send(&RandomWordsFulfilled{
		RequestID: new(big.Int).Set(requestID),
		Payment:   payment,
		Success:   cerr == nil,
	})
	return cerr
}

// RestoreRequest re-registers a request that was accepted before a restart so it can
// still be fulfilled. Later requests are numbered after id
func (m *MockCoordinator) RestoreRequest(id *big.Int, req *raffle.RandomWordsRequest) error {
	if id == nil || id.Sign() <= 0 {
		return ErrNonexistentRequest
	}
	if req.NumWords == 0 || req.NumWords > maxNumWords {
		return ErrInvalidNumWords
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[req.SubscriptionID]
	if !ok {
		return ErrInvalidSubscription
	}
	if _, ok := sub.consumers[req.Consumer]; !ok {
		return ErrInvalidConsumer
	}
	m.requests[id.String()] = &request{
		subID:            req.SubscriptionID,
		consumer:         req.Consumer,
		callbackGasLimit: req.CallbackGasLimit,
		numWords:         req.NumWords,
	}
	if id.Cmp(m.lastRequestID) > 0 {
		m.lastRequestID = new(big.Int).Set(id)
	}
	glog.V(5).Infof("Restored randomness request requestId=%v consumer=%v", id, req.Consumer.Hex())
	return nil
}

// PendingRequests returns the ids of requests that have not been fulfilled yet, lowest first
func (m *MockCoordinator) PendingRequests() []*big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]*big.Int, 0, len(m.requests))
	for k := range m.requests {
		id, _ := new(big.Int).SetString(k, 10)
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

// Close unsubscribes all feed subscribers
func (m *MockCoordinator) Close() {
	m.feeds.scope.Close()
}
