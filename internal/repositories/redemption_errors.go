package repositories

import "fmt"

// RedemptionErrorCode enumerates failure reasons for redemption operations.
type RedemptionErrorCode string

const (
	// RedemptionErrorUnknown represents an unspecified failure.
	RedemptionErrorUnknown RedemptionErrorCode = "redemption_unknown"
	// RedemptionErrorInvalidInput indicates the caller supplied invalid arguments.
	RedemptionErrorInvalidInput RedemptionErrorCode = "redemption_invalid_input"
	// RedemptionErrorGlobalLimit indicates the coupon's total cap is exhausted.
	RedemptionErrorGlobalLimit RedemptionErrorCode = "redemption_global_limit"
	// RedemptionErrorUserLimit indicates the per-customer cap is exhausted.
	RedemptionErrorUserLimit RedemptionErrorCode = "redemption_user_limit"
)

// RedemptionError wraps redemption-specific failures with machine readable codes.
type RedemptionError struct {
	Op      string
	Code    RedemptionErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RedemptionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *RedemptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsLimit reports whether the error represents an exhausted redemption cap.
func (e *RedemptionError) IsLimit() bool {
	if e == nil {
		return false
	}
	return e.Code == RedemptionErrorGlobalLimit || e.Code == RedemptionErrorUserLimit
}

// NewRedemptionError constructs a typed redemption error.
func NewRedemptionError(code RedemptionErrorCode, message string, err error) *RedemptionError {
	if message == "" {
		message = string(code)
	}
	return &RedemptionError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
