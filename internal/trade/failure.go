package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type FailureReason string

const (
	ReasonInsufficientBalance    FailureReason = "INSUFFICIENT_BALANCE"
	ReasonInsufficientFeeBalance FailureReason = "INSUFFICIENT_FEE_BALANCE"
	ReasonInvalidPrice           FailureReason = "INVALID_PRICE"
	ReasonInvalidQuote           FailureReason = "INVALID_QUOTE"
	ReasonNoSwapTransaction      FailureReason = "NO_SWAP_TRANSACTION"
	ReasonPriceDeviationTooHigh  FailureReason = "PRICE_DEVIATION_TOO_HIGH"
	ReasonConfirmationError      FailureReason = "CONFIRMATION_ERROR"
	ReasonChainException         FailureReason = "CHAIN_EXCEPTION"
)

// Failure is the typed error returned by executors.
type Failure struct {
	Reason FailureReason
	Err    error

	// SubmittedTx is set once a signed transaction may have reached the
	// chain, even if the send itself reported an error.
	SubmittedTx  string
	QuotedPrice  *decimal.Decimal
	DeviationPct *decimal.Decimal
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func Fail(reason FailureReason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

func Failf(reason FailureReason, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Err: fmt.Errorf(format, args...)}
}

func (f *Failure) WithSubmitted(txHash string) *Failure {
	f.SubmittedTx = txHash
	return f
}

func (f *Failure) WithPrices(quoted, deviation *decimal.Decimal) *Failure {
	f.QuotedPrice = quoted
	f.DeviationPct = deviation
	return f
}

// AsFailure returns the *Failure inside err, or wraps err as CHAIN_EXCEPTION.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Fail(ReasonChainException, err)
}
