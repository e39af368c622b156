package eth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var payoutAccount = ethcommon.HexToAddress("0x00000000000000000000000000000000000000f1")

type mockRemoteNonceReader struct {
	mock.Mock
}

func (m *mockRemoteNonceReader) PendingNonceAt(ctx context.Context, addr ethcommon.Address) (uint64, error) {
	args := m.Called(ctx, addr)

	return args.Get(0).(uint64), args.Error(1)
}

func TestNext_PendingNonceAtError(t *testing.T) {
	r := &mockRemoteNonceReader{}
	nm := NewNonceManager(payoutAccount, r)

	r.On("PendingNonceAt", mock.Anything, payoutAccount).Return(uint64(0), errors.New("PendingNonceAt error"))

	_, err := nm.Next(context.Background())
	assert.EqualError(t, err, "PendingNonceAt error")
}

func TestNext_ZeroNonce(t *testing.T) {
	r := &mockRemoteNonceReader{}
	nm := NewNonceManager(payoutAccount, r)

	r.On("PendingNonceAt", mock.Anything, payoutAccount).Return(uint64(0), nil)

	nonce, err := nm.Next(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), nonce)
}

func TestNext_IncrementLocal(t *testing.T) {
	assert := assert.New(t)

	r := &mockRemoteNonceReader{}
	nm := NewNonceManager(payoutAccount, r)

	r.On("PendingNonceAt", mock.Anything, payoutAccount).Return(uint64(0), nil)

	nm.Update(0)
	nonce, err := nm.Next(context.Background())
	assert.Nil(err)
	assert.Equal(uint64(1), nonce)

	nm.Update(nonce)
	nonce, err = nm.Next(context.Background())
	assert.Nil(err)
	assert.Equal(uint64(2), nonce)
}

func TestNext_LocalLowerThanRemote(t *testing.T) {
	r := &mockRemoteNonceReader{}
	nm := NewNonceManager(payoutAccount, r)

	r.On("PendingNonceAt", mock.Anything, payoutAccount).Return(uint64(7), nil)

	nm.Update(1)
	nonce, err := nm.Next(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, uint64(7), nonce)
}

func TestReset_TrustsRemote(t *testing.T) {
	r := &mockRemoteNonceReader{}
	nm := NewNonceManager(payoutAccount, r)

	r.On("PendingNonceAt", mock.Anything, payoutAccount).Return(uint64(2), nil)

	nm.Update(9)
	nm.Reset()

	nonce, err := nm.Next(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), nonce)
}

func TestNextAndUpdate_Concurrent(t *testing.T) {
	r := &mockRemoteNonceReader{}
	nm := NewNonceManager(payoutAccount, r)

	r.On("PendingNonceAt", mock.Anything, payoutAccount).Return(uint64(0), nil)

	var wg sync.WaitGroup
	var errCount uint64

	var usedNoncesLock sync.Mutex
	usedNonces := make(map[uint64]bool)

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			nm.Lock()
			defer nm.Unlock()

			nonce, err := nm.Next(context.Background())
			if err != nil {
				atomic.AddUint64(&errCount, 1)
				return
			}

			usedNoncesLock.Lock()
			usedNonces[nonce] = true
			usedNoncesLock.Unlock()

			nm.Update(nonce)
		}()
	}

	wg.Wait()

	assert := assert.New(t)
	assert.Equal(uint64(0), errCount)

	nonce, err := nm.Next(context.Background())
	assert.Nil(err)
	assert.Equal(uint64(50), nonce)

	for i := 0; i < 50; i++ {
		assert.True(usedNonces[uint64(i)])
	}
}
