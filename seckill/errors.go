package seckill

import "fmt"

// Admission script results
const (
	resultAdmitted   = 0
	resultSoldOut    = 1
	resultDuplicate  = 2
	resultNotFound   = 3
	resultNotStarted = 4
	resultEnded      = 5
)

// RejectionError is a business refusal of an order request. It is not
// retried.
type RejectionError struct {
	Code   int
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

var (
	ErrSoldOut         = &RejectionError{Code: resultSoldOut, Reason: "stock sold out"}
	ErrDuplicateOrder  = &RejectionError{Code: resultDuplicate, Reason: "user already ordered this voucher"}
	ErrVoucherNotFound = &RejectionError{Code: resultNotFound, Reason: "voucher is not on sale"}
	ErrNotStarted      = &RejectionError{Code: resultNotStarted, Reason: "sale has not started"}
	ErrEnded           = &RejectionError{Code: resultEnded, Reason: "sale has ended"}
)

func rejectionFor(code int64) error {
	switch code {
	case resultSoldOut:
		return ErrSoldOut
	case resultDuplicate:
		return ErrDuplicateOrder
	case resultNotFound:
		return ErrVoucherNotFound
	case resultNotStarted:
		return ErrNotStarted
	case resultEnded:
		return ErrEnded
	default:
		return fmt.Errorf("unexpected admission result %d", code)
	}
}
