package vrf

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/livepeer/go-raffle/raffle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner        = ethcommon.HexToAddress("0x0A")
	consumerAddr = ethcommon.HexToAddress("0x0B")
	gasLane      = ethcommon.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")
	twoLink      = new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
)

type stubConsumer struct {
	mu    sync.Mutex
	ids   []*big.Int
	words [][]*big.Int
	err   error
}

func (c *stubConsumer) FulfillRandomWords(ctx context.Context, requestID *big.Int, words []*big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, requestID)
	c.words = append(c.words, words)
	return c.err
}

func newRequest(subID uint64) *raffle.RandomWordsRequest {
	return &raffle.RandomWordsRequest{
		Consumer:             consumerAddr,
		KeyHash:              gasLane,
		SubscriptionID:       subID,
		RequestConfirmations: 3,
		CallbackGasLimit:     500000,
		NumWords:             1,
	}
}

func TestRandomWords_Deterministic(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	words, err := RandomWords(big.NewInt(1), 2)
	require.Nil(err)
	require.Len(words, 2)

	expected := crypto.Keccak256(
		ethcommon.LeftPadBytes(big.NewInt(1).Bytes(), 32),
		ethcommon.LeftPadBytes(big.NewInt(0).Bytes(), 32),
	)
	assert.Equal(new(big.Int).SetBytes(expected), words[0])
	assert.NotEqual(words[0], words[1])

	again, err := RandomWords(big.NewInt(1), 2)
	require.Nil(err)
	assert.Equal(words, again)

	other, err := RandomWords(big.NewInt(2), 1)
	require.Nil(err)
	assert.NotEqual(words[0], other[0])
}

func TestMockCoordinator_Subscriptions(t *testing.T) {
	assert := assert.New(t)

	m := NewMockCoordinator(BaseFee, GasPriceLink)
	defer m.Close()

	assert.Equal(uint64(1), m.CreateSubscription(owner))
	assert.Equal(uint64(2), m.CreateSubscription(owner))

	assert.Equal(ErrInvalidSubscription, m.FundSubscription(99, twoLink))
	assert.Equal(ErrInvalidAmount, m.FundSubscription(1, big.NewInt(0)))
	assert.Equal(ErrInvalidAmount, m.FundSubscription(1, nil))
	assert.Nil(m.FundSubscription(1, twoLink))

	assert.Equal(ErrInvalidSubscription, m.AddConsumer(99, consumerAddr, &stubConsumer{}))
	assert.Equal(ErrInvalidConsumer, m.AddConsumer(1, consumerAddr, nil))
	assert.Nil(m.AddConsumer(1, consumerAddr, &stubConsumer{}))
	// adding twice does not duplicate the consumer
	assert.Nil(m.AddConsumer(1, consumerAddr, &stubConsumer{}))

	sub, err := m.GetSubscription(1)
	require.Nil(t, err)
	assert.Equal(owner, sub.Owner)
	assert.Equal(twoLink, sub.Balance)
	assert.Equal([]ethcommon.Address{consumerAddr}, sub.Consumers)

	_, err = m.GetSubscription(99)
	assert.Equal(ErrInvalidSubscription, err)
}

func TestMockCoordinator_RequestValidation(t *testing.T) {
	assert := assert.New(t)

	m := NewMockCoordinator(BaseFee, GasPriceLink)
	defer m.Close()
	subID := m.CreateSubscription(owner)

	_, err := m.RequestRandomWords(context.Background(), newRequest(99))
	assert.Equal(ErrInvalidSubscription, err)

	_, err = m.RequestRandomWords(context.Background(), newRequest(subID))
	assert.Equal(ErrInvalidConsumer, err)

	require.Nil(t, m.AddConsumer(subID, consumerAddr, &stubConsumer{}))
	req := newRequest(subID)
	req.NumWords = 0
	_, err = m.RequestRandomWords(context.Background(), req)
	assert.Equal(ErrInvalidNumWords, err)
	req.NumWords = maxNumWords + 1
	_, err = m.RequestRandomWords(context.Background(), req)
	assert.Equal(ErrInvalidNumWords, err)

	assert.Empty(m.PendingRequests())
}

func TestMockCoordinator_RequestAndFulfill(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := NewMockCoordinator(BaseFee, GasPriceLink)
	defer m.Close()
	subID := m.CreateSubscription(owner)
	consumer := &stubConsumer{}
	require.Nil(m.AddConsumer(subID, consumerAddr, consumer))

	requested := make(chan *RandomWordsRequested, 2)
	fulfilled := make(chan *RandomWordsFulfilled, 2)
	defer m.SubscribeRandomWordsRequested(requested).Unsubscribe()
	defer m.SubscribeRandomWordsFulfilled(fulfilled).Unsubscribe()

	id, err := m.RequestRandomWords(context.Background(), newRequest(subID))
	require.Nil(err)
	assert.Equal(big.NewInt(1), id)

	ev := <-requested
	assert.Equal(big.NewInt(1), ev.RequestID)
	assert.Equal(gasLane, ev.KeyHash)
	assert.Equal(subID, ev.SubscriptionID)
	assert.Equal(uint16(3), ev.MinConfirmations)
	assert.Equal(uint32(500000), ev.CallbackGasLimit)
	assert.Equal(consumerAddr, ev.Sender)

	// the consumer is never called from within the request
	assert.Empty(consumer.ids)
	assert.Len(m.PendingRequests(), 1)

	// unfunded subscriptions cannot pay for the fulfillment
	assert.Equal(ErrInsufficientBalance, m.FulfillRandomWords(context.Background(), id))
	assert.Len(m.PendingRequests(), 1)

	require.Nil(m.FundSubscription(subID, twoLink))
	assert.Equal(ErrNonexistentRequest, m.FulfillRandomWords(context.Background(), big.NewInt(99)))
	assert.Equal(ErrNonexistentRequest, m.FulfillRandomWords(context.Background(), nil))
	require.Nil(m.FulfillRandomWords(context.Background(), id))

	expectedWords, err := RandomWords(id, 1)
	require.Nil(err)
	require.Len(consumer.ids, 1)
	assert.Equal(id, consumer.ids[0])
	assert.Equal(expectedWords, consumer.words[0])

	payment := new(big.Int).Add(BaseFee, new(big.Int).Mul(GasPriceLink, big.NewInt(500000)))
	fev := <-fulfilled
	assert.Equal(id, fev.RequestID)
	assert.Equal(payment, fev.Payment)
	assert.True(fev.Success)

	sub, err := m.GetSubscription(subID)
	require.Nil(err)
	assert.Equal(new(big.Int).Sub(twoLink, payment), sub.Balance)

	// a request is fulfilled at most once
	assert.Equal(ErrNonexistentRequest, m.FulfillRandomWords(context.Background(), id))
	assert.Empty(m.PendingRequests())

	id, err = m.RequestRandomWords(context.Background(), newRequest(subID))
	require.Nil(err)
	assert.Equal(big.NewInt(2), id)
}

func TestMockCoordinator_OverrideAndConsumerFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := NewMockCoordinator(BaseFee, GasPriceLink)
	defer m.Close()
	subID := m.CreateSubscription(owner)
	require.Nil(m.FundSubscription(subID, twoLink))
	consumer := &stubConsumer{err: errors.New("payout failed")}
	require.Nil(m.AddConsumer(subID, consumerAddr, consumer))

	fulfilled := make(chan *RandomWordsFulfilled, 1)
	defer m.SubscribeRandomWordsFulfilled(fulfilled).Unsubscribe()

	id, err := m.RequestRandomWords(context.Background(), newRequest(subID))
	require.Nil(err)

	words := []*big.Int{big.NewInt(7)}
	err = m.FulfillRandomWordsWithOverride(context.Background(), id, words)
	assert.ErrorIs(err, ErrConsumerRejected)
	assert.EqualError(errors.Unwrap(err), "payout failed")
	var cerr *ConsumerError
	require.True(errors.As(err, &cerr))
	assert.Equal(id, cerr.RequestID)
	assert.Equal(consumerAddr, cerr.Consumer)
	assert.Equal(words, consumer.words[0])

	fev := <-fulfilled
	assert.False(fev.Success)
	// the request is consumed even though the consumer failed
	assert.Empty(m.PendingRequests())
}

func TestMockCoordinator_RestoreRequest(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := NewMockCoordinator(BaseFee, GasPriceLink)
	defer m.Close()
	subID := m.CreateSubscription(owner)
	require.Nil(m.FundSubscription(subID, twoLink))

	assert.Equal(ErrInvalidConsumer, m.RestoreRequest(big.NewInt(4), newRequest(subID)))

	consumer := &stubConsumer{}
	require.Nil(m.AddConsumer(subID, consumerAddr, consumer))

	assert.Equal(ErrNonexistentRequest, m.RestoreRequest(nil, newRequest(subID)))
	assert.Equal(ErrNonexistentRequest, m.RestoreRequest(big.NewInt(0), newRequest(subID)))
	assert.Equal(ErrInvalidSubscription, m.RestoreRequest(big.NewInt(4), newRequest(subID+1)))

	require.Nil(m.RestoreRequest(big.NewInt(4), newRequest(subID)))
	assert.Equal([]*big.Int{big.NewInt(4)}, m.PendingRequests())

	// new requests are numbered after the restored one
	id, err := m.RequestRandomWords(context.Background(), newRequest(subID))
	require.Nil(err)
	assert.Equal(int64(5), id.Int64())
	assert.Equal([]*big.Int{big.NewInt(4), big.NewInt(5)}, m.PendingRequests())

	require.Nil(m.FulfillRandomWords(context.Background(), big.NewInt(4)))
	require.Len(consumer.ids, 1)
	assert.Equal(int64(4), consumer.ids[0].Int64())
	assert.Equal([]*big.Int{big.NewInt(5)}, m.PendingRequests())
}

func TestMockCoordinator_CreateSubscriptionWithID(t *testing.T) {
	assert := assert.New(t)

	m := NewMockCoordinator(BaseFee, GasPriceLink)
	defer m.Close()

	assert.Nil(m.CreateSubscriptionWithID(11479, owner))
	assert.Equal(ErrInvalidSubscription, m.CreateSubscriptionWithID(11479, owner))
	assert.Equal(ErrInvalidSubscription, m.CreateSubscriptionWithID(0, owner))

	sub, err := m.GetSubscription(11479)
	assert.Nil(err)
	assert.Equal(owner, sub.Owner)
	assert.Equal(int64(0), sub.Balance.Int64())

	assert.Equal(uint64(11480), m.CreateSubscription(owner))
}
