package types

import "fmt"

// ExecError is the error returned when a command fails inside the executor.
// It carries the offending command text, the underlying driver error, and,
// when the rollback attempt itself failed, the rollback error. The driver
// error is exposed through Unwrap so callers can use errors.Is/errors.As
// against pgconn error types without losing the execution context.
type ExecError struct {
	Command     string
	Err         error
	RollbackErr error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("execution failed on sql: %s: %v (unable to roll back: %v)",
			e.Command, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("execution failed on sql: %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying driver error for errors.Is/errors.As support.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// NewExecError creates a new ExecError. rollbackErr may be nil when the
// rollback succeeded or was never attempted.
func NewExecError(command string, err, rollbackErr error) *ExecError {
	return &ExecError{
		Command:     command,
		Err:         err,
		RollbackErr: rollbackErr,
	}
}

// CopyError is the error returned when a bulk COPY load fails. It follows
// the same dual-failure reporting discipline as ExecError: the copy failure
// plus, when applicable, the rollback failure.
type CopyError struct {
	Table       string
	Err         error
	RollbackErr error
}

// Error implements the error interface.
func (e *CopyError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("copy into %s failed: %v (unable to roll back: %v)",
			e.Table, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("copy into %s failed: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *CopyError) Unwrap() error {
	return e.Err
}

// NewCopyError creates a new CopyError.
func NewCopyError(table string, err, rollbackErr error) *CopyError {
	return &CopyError{
		Table:       table,
		Err:         err,
		RollbackErr: rollbackErr,
	}
}
