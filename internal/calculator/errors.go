package calculator

// Validation messages returned to callers verbatim.
const (
	MsgInvalidSplit       = "Invalid split type or missing split details"
	MsgCustomMismatch     = "Custom amounts must equal total expense"
	MsgPercentageMismatch = "Percentages must sum to 100"
	MsgInvalidAmount      = "Amount must be greater than zero"
	MsgNegativeShare      = "Split values cannot be negative"
)

// ValidationError reports malformed or inconsistent split input.
// Message is human readable and safe to show to end users.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}
