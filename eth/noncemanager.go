package eth

import (
	"context"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// RemoteNonceReader is an interface that describes an object
// capable of reading transaction nonces for ETH address from a remote source
type RemoteNonceReader interface {
	PendingNonceAt(ctx context.Context, addr ethcommon.Address) (uint64, error)
}

// NonceManager tracks the next transaction nonce of the payout account
type NonceManager struct {
	addr  ethcommon.Address
	nonce uint64
	mu    sync.Mutex

	remoteReader RemoteNonceReader
}

// NewNonceManager creates an instance of a NonceManager
func NewNonceManager(addr ethcommon.Address, remoteReader RemoteNonceReader) *NonceManager {
	return &NonceManager{
		addr:         addr,
		remoteReader: remoteReader,
	}
}

// Lock must be held across a Next and the matching Update or Reset
func (m *NonceManager) Lock() {
	m.mu.Lock()
}

func (m *NonceManager) Unlock() {
	m.mu.Unlock()
}

// Next returns the next transaction nonce
func (m *NonceManager) Next(ctx context.Context) (uint64, error) {
	remoteNonce, err := m.remoteReader.PendingNonceAt(ctx, m.addr)
	if err != nil {
		return 0, err
	}

	// A remote nonce ahead of ours means another client sent
	// transactions from the same account
	if remoteNonce > m.nonce {
		return remoteNonce, nil
	}

	return m.nonce, nil
}

// Update records lastNonce as used
func (m *NonceManager) Update(lastNonce uint64) {
	m.nonce = lastNonce + 1
}

// Reset forgets the local nonce so the next call to Next trusts the remote reader
func (m *NonceManager) Reset() {
	m.nonce = 0
}
