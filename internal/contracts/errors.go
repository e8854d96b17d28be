package contracts

import "fmt"

// ErrorCode is a stable machine-readable error identifier returned to callers
type ErrorCode string

const (
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrCodeBatchSizeExceeded    ErrorCode = "BATCH_SIZE_EXCEEDED"
	ErrCodeMaintenanceWindow    ErrorCode = "MAINTENANCE_WINDOW"
	ErrCodeOrderNotFound        ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeOrderAlreadyComplete ErrorCode = "ORDER_ALREADY_COMPLETE"
	ErrCodeModifyNotAllowed     ErrorCode = "MODIFY_NOT_ALLOWED"
	ErrCodeCancelNotAllowed     ErrorCode = "CANCEL_NOT_ALLOWED"
	ErrCodeNoOpenPositions      ErrorCode = "NO_OPEN_POSITIONS"
	ErrCodeBrokerError          ErrorCode = "BROKER_ERROR"
	ErrCodeModifyFailed         ErrorCode = "MODIFY_FAILED"
	ErrCodeCancelFailed         ErrorCode = "CANCEL_FAILED"
	ErrCodeRoutingError         ErrorCode = "ROUTING_ERROR"
	ErrCodeRateLimited          ErrorCode = "RATE_LIMITED"
	ErrCodeRiskRejected         ErrorCode = "RISK_REJECTED"
	ErrCodeRetryFailed          ErrorCode = "RETRY_FAILED"
	ErrCodeNetwork              ErrorCode = "NETWORK_ERROR"
	ErrCodeTimeout              ErrorCode = "TIMEOUT"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// CodedError carries an ErrorCode with a human-readable message
type CodedError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewError creates a CodedError
func NewError(code ErrorCode, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code to an underlying error
func WrapError(code ErrorCode, err error) *CodedError {
	return &CodedError{Code: code, Message: err.Error(), Err: err}
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Err
}
