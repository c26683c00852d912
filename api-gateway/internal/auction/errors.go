package auction

import "errors"

// Rejections reported by Machine. Operations wrap them with context; use
// errors.Is to classify.
var (
	// ErrInvalidState means the operation is not valid in the current status
	ErrInvalidState = errors.New("invalid state")
	// ErrUnauthorized means the caller does not hold the required role
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBidTooLow means the offer does not strictly exceed the highest bid
	ErrBidTooLow = errors.New("bid too low")
	// ErrAmountMismatch means the payment differs from the accepted price
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrTransferFailed means the funds transfer to the seller failed
	ErrTransferFailed = errors.New("transfer failed")
	// ErrDuplicateTransfer is returned by a Transferer that already recorded
	// the same reference for the same recipient and amount
	ErrDuplicateTransfer = errors.New("transfer already recorded")
)

// Kind returns a short name for the rejection wrapped by err, or "" if err
// is not one of the package errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrBidTooLow):
		return "BidTooLow"
	case errors.Is(err, ErrAmountMismatch):
		return "AmountMismatch"
	case errors.Is(err, ErrTransferFailed):
		return "TransferFailed"
	}
	return ""
}
