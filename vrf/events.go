package vrf

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// RandomWordsRequested is sent when a consumer's request has been accepted
type RandomWordsRequested struct {
	KeyHash          ethcommon.Hash
	RequestID        *big.Int
	SubscriptionID   uint64
	MinConfirmations uint16
	CallbackGasLimit uint32
	NumWords         uint32
	Sender           ethcommon.Address
}

// RandomWordsFulfilled is sent after the words were delivered to the consumer
type RandomWordsFulfilled struct {
	RequestID *big.Int
	Payment   *big.Int
	Success   bool
}

type feeds struct {
	requestedFeed event.Feed
	fulfilledFeed event.Feed
	scope         event.SubscriptionScope
}

func (m *MockCoordinator) SubscribeRandomWordsRequested(sink chan<- *RandomWordsRequested) event.Subscription {
	return m.feeds.scope.Track(m.feeds.requestedFeed.Subscribe(sink))
}

func (m *MockCoordinator) SubscribeRandomWordsFulfilled(sink chan<- *RandomWordsFulfilled) event.Subscription {
	return m.feeds.scope.Track(m.feeds.fulfilledFeed.Subscribe(sink))
}
