package inventory

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by RuleError. Match with errors.Is.
var (
	ErrNotFound     = errors.New("item not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrCapacity     = errors.New("capacity exceeded")
	ErrInvalid      = errors.New("invalid inventory")
)

// RuleError reports a mutation whose preconditions do not hold.
// Rule names the mutation (snake_case) that rejected its input.
type RuleError struct {
	Rule    string
	Message string
	Err     error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

func notFound(rule string, uid int64) *RuleError {
	return &RuleError{Rule: rule, Message: fmt.Sprintf("item %d not found", uid), Err: ErrNotFound}
}

func precondition(rule, format string, args ...any) *RuleError {
	return &RuleError{Rule: rule, Message: fmt.Sprintf(format, args...), Err: ErrPrecondition}
}

func capacity(rule, format string, args ...any) *RuleError {
	return &RuleError{Rule: rule, Message: fmt.Sprintf(format, args...), Err: ErrCapacity}
}

func invalid(format string, args ...any) *RuleError {
	return &RuleError{Rule: "validate", Message: fmt.Sprintf(format, args...), Err: ErrInvalid}
}
