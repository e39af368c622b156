package raffle

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Snapshot is a consistent copy of the raffle state
type Snapshot struct {
	Address       ethcommon.Address   `json:"address"`
	State         State               `json:"state"`
	EntranceFee   *big.Int            `json:"entranceFee"`
	Interval      time.Duration       `json:"interval"`
	Players       []ethcommon.Address `json:"players"`
	Balance       *big.Int            `json:"balance"`
	LastTimestamp time.Time           `json:"lastTimestamp"`
	RecentWinner  ethcommon.Address   `json:"recentWinner"`
	Pending       *PendingRequest     `json:"pending,omitempty"`
}

// Store persists raffle state so that a restarted node can resume the current cycle,
// including a pending randomness request
type Store interface {
	// LoadSnapshot returns the last saved snapshot or nil if none was saved
	LoadSnapshot() (*Snapshot, error)

	// SaveSnapshot replaces the saved snapshot
	SaveSnapshot(s *Snapshot) error

	// RecordWinner appends a completed cycle to the winner history
	RecordWinner(w *WinnerPicked) error
}
