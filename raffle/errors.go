package raffle

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFee is returned when an entry pays less than the entrance fee
	ErrInsufficientFee = errors.New("not enough ETH entered")

	// ErrNotOpen is returned when an entry is attempted while a winner is being calculated
	ErrNotOpen = errors.New("raffle not open")

	// ErrIndexOutOfRange is returned when a player index is past the end of the player list
	ErrIndexOutOfRange = errors.New("player index out of range")

	// ErrRequestInFlight is returned when a randomness request is issued while another one is pending
	ErrRequestInFlight = errors.New("randomness request already in flight")

	// ErrUnknownRequestID is returned when a fulfillment does not match the pending request
	ErrUnknownRequestID = errors.New("unknown request id")

	// ErrNoRandomWords is returned when a fulfillment carries no random words
	ErrNoRandomWords = errors.New("fulfillment carries no random words")

	// ErrNoPlayers is returned when a winner is selected from an empty player list.
	// A cycle only starts with at least one player so this indicates a broken invariant
	ErrNoPlayers = errors.New("no players to select a winner from")

	// ErrNoRandomness is returned by RetryPayout when the pending request has not been fulfilled yet
	ErrNoRandomness = errors.New("pending request has not been fulfilled")

	// ErrSnapshotNotSaved is returned by PerformUpkeep when the started cycle could not be
	// persisted. The cycle start is rolled back
	ErrSnapshotNotSaved = errors.New("could not save raffle snapshot")
)

// UpkeepNotNeededError is returned by PerformUpkeep when a cycle cannot start.
// It carries the values that were observed so the caller can tell why
type UpkeepNotNeededError struct {
	Balance    *big.Int
	NumPlayers int
	State      State
	Reason     UpkeepReason
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("upkeep not needed balance=%v players=%v state=%v reason=%v", e.Balance, e.NumPlayers, uint8(e.State), e.Reason)
}

// PayoutError is returned when the pool balance could not be transferred to the winner.
// The cycle is left in the Calculating state with the ledger intact
type PayoutError struct {
	Winner ethcommon.Address
	Amount *big.Int
	err    error
}

func newPayoutError(winner ethcommon.Address, amount *big.Int, err error) *PayoutError {
	return &PayoutError{
		Winner: winner,
		Amount: amount,
		err:    err,
	}
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("payout transfer failed winner=%v amount=%v err=%q", e.Winner.Hex(), e.Amount, e.err)
}

// Unwrap returns the underlying transfer error
func (e *PayoutError) Unwrap() error {
	return e.err
}

// ProviderError is returned when the randomness provider refuses a request.
// The cycle start is rolled back when this happens
type ProviderError struct {
	RequestedAt time.Time
	err         error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("randomness request rejected err=%q", e.err)
}

// Unwrap returns the provider's error
func (e *ProviderError) Unwrap() error {
	return e.err
}

// ErrorClass groups errors by how a caller should react to them
type ErrorClass int

const (
	// ClassUnknown is any error not produced by this package
	ClassUnknown ErrorClass = iota
	// ClassValidation errors are safe to retry with corrected input
	ClassValidation
	// ClassEligibility errors mean the caller should wait and poll again
	ClassEligibility
	// ClassProtocol errors reject mismatched or duplicate fulfillments
	ClassProtocol
	// ClassTransfer errors leave the cycle retryable with funds retained
	ClassTransfer
	// ClassProvider errors mean the randomness provider refused the request
	ClassProvider
	// ClassInvariant errors indicate internal state that should be impossible
	ClassInvariant
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "ValidationError"
	case ClassEligibility:
		return "EligibilityError"
	case ClassProtocol:
		return "ProtocolError"
	case ClassTransfer:
		return "TransferError"
	case ClassProvider:
		return "ProviderError"
	case ClassInvariant:
		return "InvariantError"
	default:
		return "UnknownError"
	}
}

// Classify returns the class of an error returned by a Raffle
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var upkeepErr *UpkeepNotNeededError
	var payoutErr *PayoutError
	var providerErr *ProviderError

	switch {
	case errors.Is(err, ErrInsufficientFee), errors.Is(err, ErrNotOpen), errors.Is(err, ErrIndexOutOfRange):
		return ClassValidation
	case errors.As(err, &upkeepErr):
		return ClassEligibility
	case errors.Is(err, ErrUnknownRequestID), errors.Is(err, ErrRequestInFlight), errors.Is(err, ErrNoRandomWords), errors.Is(err, ErrNoRandomness):
		return ClassProtocol
	case errors.As(err, &payoutErr):
		return ClassTransfer
	case errors.As(err, &providerErr):
		return ClassProvider
	case errors.Is(err, ErrNoPlayers):
		return ClassInvariant
	}

	return ClassUnknown
}
