package vrf

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
)

var fulfillTimeout = 30 * time.Second

type randomWordsSource interface {
	SubscribeRandomWordsRequested(sink chan<- *RandomWordsRequested) event.Subscription
	FulfillRandomWords(ctx context.Context, requestID *big.Int) error
	PendingRequests() []*big.Int
}

type queuedRequest struct {
	id  *big.Int
	due time.Time
}

// AutoFulfiller plays the oracle on local networks: every randomness request seen on the
// coordinator is fulfilled after a fixed delay
type AutoFulfiller struct {
	src   randomWordsSource
	delay time.Duration
	quit  chan struct{}

	wg sync.WaitGroup
}

func NewAutoFulfiller(src randomWordsSource, delay time.Duration) *AutoFulfiller {
	return &AutoFulfiller{
		src:   src,
		delay: delay,
		quit:  make(chan struct{}),
	}
}

// Start runs the fulfillment loop until Stop is called. Requests that were already
// pending when the loop started are fulfilled too
func (f *AutoFulfiller) Start() error {
	sink := make(chan *RandomWordsRequested, 10)
	sub := f.src.SubscribeRandomWordsRequested(sink)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer f.wg.Wait()
	defer cancel()

	var (
		queue  []queuedRequest
		queued = make(map[string]bool)
		timer  *time.Timer
		timerC <-chan time.Time
	)
	enqueue := func(id *big.Int) {
		if queued[id.String()] {
			return
		}
		queued[id.String()] = true
		queue = append(queue, queuedRequest{id: id, due: time.Now().Add(f.delay)})
	}
	for _, id := range f.src.PendingRequests() {
		enqueue(id)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if timerC == nil && len(queue) > 0 {
			timer = time.NewTimer(time.Until(queue[0].due))
			timerC = timer.C
		}

		select {
		case <-f.quit:
			glog.Infof("Stopping randomness auto fulfiller")
			return nil
		case err := <-sub.Err():
			if err != nil {
				glog.Errorf("Randomness request subscription error err=%q", err)
			}
			return err
		case req := <-sink:
			enqueue(req.RequestID)
		case <-timerC:
			timerC = nil
			next := queue[0]
			queue = queue[1:]
			delete(queued, next.id.String())
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				f.fulfill(ctx, next.id)
			}()
		}
	}
}

// Stop signals the fulfillment loop to exit gracefully
func (f *AutoFulfiller) Stop() {
	close(f.quit)
}

func (f *AutoFulfiller) fulfill(ctx context.Context, requestID *big.Int) {
	ctx, cancel := context.WithTimeout(ctx, fulfillTimeout)
	defer cancel()
	ctx = clog.AddRequestID(ctx, requestID.String())

	if err := f.src.FulfillRandomWords(ctx, requestID); err != nil {
		clog.Errorf(ctx, "Error fulfilling random words err=%q", err)
		return
	}
	clog.V(5).Infof(ctx, "Fulfilled random words")
}
