package starter

import (
	"context"

	"github.com/ethereum/go-ethereum/event"
	"github.com/livepeer/go-raffle/monitor"
	"github.com/livepeer/go-raffle/raffle"
)

const eventBufferSize = 32

type entryEvent struct {
	Player     string `json:"player"`
	Amount     string `json:"amount"`
	NumPlayers int    `json:"numPlayers"`
}

type winnerRequestedEvent struct {
	RequestID   string `json:"requestId"`
	RequestedAt int64  `json:"requestedAt"`
}

type winnerPickedEvent struct {
	RequestID string `json:"requestId"`
	Winner    string `json:"winner"`
	Amount    string `json:"amount"`
	PickedAt  int64  `json:"pickedAt"`
}

type payoutFailedEvent struct {
	RequestID string `json:"requestId"`
	Winner    string `json:"winner"`
	Amount    string `json:"amount"`
	Error     string `json:"error"`
}

// forwardRaffleEvents publishes raffle notifications as Kafka events until ctx is done
// or the raffle is closed
func forwardRaffleEvents(ctx context.Context, rf *raffle.Raffle) {
	forwardEvents(ctx, rf, monitor.SendQueueEventAsync)
}

func forwardEvents(ctx context.Context, rf *raffle.Raffle, send func(eventType string, data any)) {
	entries := make(chan *raffle.EntryRecorded, eventBufferSize)
	requests := make(chan *raffle.WinnerRequested, eventBufferSize)
	winners := make(chan *raffle.WinnerPicked, eventBufferSize)
	failures := make(chan *raffle.PayoutFailed, eventBufferSize)

	entrySub := rf.SubscribeEntries(entries)
	subs := []event.Subscription{
		entrySub,
		rf.SubscribeWinnerRequests(requests),
		rf.SubscribeWinners(winners),
		rf.SubscribePayoutFailures(failures),
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	for {
		select {
		case e := <-entries:
			send("raffle_entered", entryEvent{
				Player:     e.Player.Hex(),
				Amount:     e.Amount.String(),
				NumPlayers: e.NumPlayers,
			})
		case e := <-requests:
			send("winner_requested", winnerRequestedEvent{
				RequestID:   e.RequestID.String(),
				RequestedAt: e.Timestamp.Unix(),
			})
		case e := <-winners:
			send("winner_picked", winnerPickedEvent{
				RequestID: e.RequestID.String(),
				Winner:    e.Winner.Hex(),
				Amount:    e.Amount.String(),
				PickedAt:  e.Timestamp.Unix(),
			})
		case e := <-failures:
			send("payout_failed", payoutFailedEvent{
				RequestID: e.RequestID.String(),
				Winner:    e.Winner.Hex(),
				Amount:    e.Amount.String(),
				Error:     e.Err.Error(),
			})
		case <-entrySub.Err():
			// the raffle was closed
			return
		case <-ctx.Done():
			return
		}
	}
}
