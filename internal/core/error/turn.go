package errx

import (
	"errors"
	"fmt"
)

// ExecutionError is returned when a turn aborts inside the graph. It names the
// node that failed and the thread the turn belonged to; the cause stays
// reachable through errors.As / errors.Is.
type ExecutionError struct {
	ThreadID string
	Node     string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("turn for thread %q failed: %v", e.ThreadID, e.Err)
	}
	return fmt.Sprintf("turn for thread %q failed in node %q: %v", e.ThreadID, e.Node, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// OutputSchemaError reports a structured model answer that does not match the
// routing schema.
type OutputSchemaError struct {
	Reason string
	Raw    string
}

func (e *OutputSchemaError) Error() string {
	return "routing output schema violation: " + e.Reason
}

// IdentityRequiredError rejects a turn that arrives without an employee id.
type IdentityRequiredError struct{}

func (e *IdentityRequiredError) Error() string {
	return "employee_id is required"
}

// ToolLoopLimitError is raised when a node keeps requesting tools past its cap.
type ToolLoopLimitError struct {
	Node  string
	Limit int
}

func (e *ToolLoopLimitError) Error() string {
	return fmt.Sprintf("node %q exceeded the tool loop limit of %d iterations", e.Node, e.Limit)
}

// IsNotFound reports whether err describes a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
