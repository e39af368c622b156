package raffle

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// StubProvider records randomness requests and hands out sequential ids starting at 1
type StubProvider struct {
	mu       sync.Mutex
	Requests []*RandomWordsRequest
	Err      error
	lastID   int64
}

func (p *StubProvider) RequestRandomWords(ctx context.Context, req *RandomWordsRequest) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	cp := *req
	p.Requests = append(p.Requests, &cp)
	p.lastID++
	return big.NewInt(p.lastID), nil
}

func (p *StubProvider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

func (p *StubProvider) NumRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// StubPayer records transfers instead of moving funds
type StubPayer struct {
	mu        sync.Mutex
	Transfers []StubTransfer
	Err       error
}

type StubTransfer struct {
	To     ethcommon.Address
	Amount *big.Int
}

func (p *StubPayer) Transfer(ctx context.Context, to ethcommon.Address, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Transfers = append(p.Transfers, StubTransfer{To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func (p *StubPayer) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

func (p *StubPayer) NumTransfers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Transfers)
}

// StubClock is a manually advanced clock
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(now time.Time) *StubClock {
	return &StubClock{now: now}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubStore keeps the latest snapshot and the winner history in memory
type StubStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
	Winners  []*WinnerPicked
	Saves    int
	SaveErr  error
	LoadErr  error
}

func (s *StubStore) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.snapshot, nil
}

func (s *StubStore) SaveSnapshot(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.snapshot = snap
	s.Saves++
	return nil
}

func (s *StubStore) RecordWinner(w *WinnerPicked) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Winners = append(s.Winners, w)
	return nil
}

func (s *StubStore) Saved() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}
