package raffle

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// EntryRecorded is sent when a player enters the raffle
type EntryRecorded struct {
	Player     ethcommon.Address
	Amount     *big.Int
	NumPlayers int
}

// WinnerRequested is sent when a cycle starts and randomness has been requested
type WinnerRequested struct {
	RequestID *big.Int
	Timestamp time.Time
}

// WinnerPicked is sent when a cycle completes and the winner has been paid
type WinnerPicked struct {
	RequestID *big.Int
	Winner    ethcommon.Address
	Amount    *big.Int
	Timestamp time.Time
}

// PayoutFailed is sent when randomness arrived but the winner could not be paid
type PayoutFailed struct {
	RequestID *big.Int
	Winner    ethcommon.Address
	Amount    *big.Int
	Err       error
}

type feeds struct {
	entryFeed        event.Feed
	requestFeed      event.Feed
	winnerFeed       event.Feed
	payoutFailedFeed event.Feed
	scope            event.SubscriptionScope
}

// SubscribeEntries subscribes to EntryRecorded notifications
func (r *Raffle) SubscribeEntries(sink chan<- *EntryRecorded) event.Subscription {
	return r.feeds.scope.Track(r.feeds.entryFeed.Subscribe(sink))
}

// SubscribeWinnerRequests subscribes to WinnerRequested notifications
func (r *Raffle) SubscribeWinnerRequests(sink chan<- *WinnerRequested) event.Subscription {
	return r.feeds.scope.Track(r.feeds.requestFeed.Subscribe(sink))
}

// SubscribeWinners subscribes to WinnerPicked notifications
func (r *Raffle) SubscribeWinners(sink chan<- *WinnerPicked) event.Subscription {
	return r.feeds.scope.Track(r.feeds.winnerFeed.Subscribe(sink))
}

// SubscribePayoutFailures subscribes to PayoutFailed notifications
func (r *Raffle) SubscribePayoutFailures(sink chan<- *PayoutFailed) event.Subscription {
	return r.feeds.scope.Track(r.feeds.payoutFailedFeed.Subscribe(sink))
}
