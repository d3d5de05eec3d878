// internal/permit/errors.go
package permit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Every error returned by this package matches exactly one of
// them through errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrRuleViolation     = errors.New("domain rule violation")
	ErrNotFound          = errors.New("not found")
)

type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

func invalidArg(field, reason string) error {
	return &ArgumentError{Field: field, Reason: reason}
}

func requireActor(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalidArg(field, "is required")
	}
	return nil
}

// TransitionError reports an operation attempted from a status it is not
// allowed in.
type TransitionError struct {
	Operation string
	Expected  []Status
	Actual    Status
}

func (e *TransitionError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		expected[i] = string(s)
	}
	return fmt.Sprintf("cannot %s application in status %s (expected %s)",
		e.Operation, e.Actual, strings.Join(expected, " or "))
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func transitionErr(op string, actual Status, expected ...Status) error {
	return &TransitionError{Operation: op, Expected: expected, Actual: actual}
}

// RuleError is a violated business rule that is not a plain status mismatch.
type RuleError struct {
	Rule    string
	Message string
}

func (e *RuleError) Error() string { return e.Message }

func (e *RuleError) Is(target error) bool { return target == ErrRuleViolation }

func ruleErr(rule, format string, args ...interface{}) error {
	return &RuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Rule identifiers carried by RuleError.
const (
	RuleDocumentsUnverified = "documents_unverified"
	RulePaymentMissing      = "payment_missing"
	RulePaymentNotCompleted = "payment_not_completed"
	RulePaymentState        = "payment_state"
	RulePaymentVerified     = "payment_already_verified"
	RuleWaiverPending       = "waiver_already_pending"
	RuleWaiverDecided       = "waiver_already_decided"
	RuleNotFlagged          = "not_flagged"
)

type MissingDocumentsError struct {
	Missing []DocumentType
}

func (e *MissingDocumentsError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return "missing required documents: " + strings.Join(names, ", ")
}

func (e *MissingDocumentsError) Is(target error) bool { return target == ErrRuleViolation }

// DocumentExpiredError is returned when a document is verified after its
// expiry date. The aggregate is left untouched; Event is the notice the caller
// should dispatch.
type DocumentExpiredError struct {
	DocumentType DocumentType
	ExpiryDate   time.Time
	AttemptedAt  time.Time
	Event        DocumentVerificationFailedDueToExpiry
}

func (e *DocumentExpiredError) Error() string {
	return fmt.Sprintf("document %s expired on %s", e.DocumentType, e.ExpiryDate.Format("2006-01-02"))
}

func (e *DocumentExpiredError) Is(target error) bool { return target == ErrRuleViolation }

type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
