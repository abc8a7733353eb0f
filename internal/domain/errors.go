package domain

import "errors"

// Kind classifies an Error so callers can decide how to surface it.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindStateConflict     Kind = "state_conflict"
	KindTransient         Kind = "transient"
	KindSettlementFailure Kind = "settlement_failure"
)

// Error is a typed engine failure. Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidInput = newErr(KindValidation, "invalid_input", "invalid input")

	ErrTaskNotFound       = newErr(KindNotFound, "task_not_found", "task not found")
	ErrMemberNotFound     = newErr(KindNotFound, "member_not_found", "member not found")
	ErrGroupNotFound      = newErr(KindNotFound, "group_not_found", "group not found")
	ErrSubmissionNotFound = newErr(KindNotFound, "submission_not_found", "submission not found")
	ErrTaskGroupNotFound  = newErr(KindNotFound, "task_group_not_found", "task group not found")

	ErrAlreadyApproved    = newErr(KindStateConflict, "already_approved", "submission already approved")
	ErrAuditInProgress    = newErr(KindStateConflict, "audit_in_progress", "submission is under review")
	ErrRejectLimitReached = newErr(KindStateConflict, "reject_limit_reached", "reject limit reached")
	ErrAlreadyEnrolled    = newErr(KindStateConflict, "already_enrolled", "already enrolled in task")
	ErrNotEnrolled        = newErr(KindStateConflict, "not_enrolled", "not enrolled in task")
	ErrNotEligible        = newErr(KindStateConflict, "not_eligible", "member not eligible for task")
	ErrQuotaExceeded      = newErr(KindStateConflict, "quota_exceeded", "task quota exceeded")
	ErrTaskNotActive      = newErr(KindStateConflict, "task_not_active", "task is not in progress")
	ErrTaskAlreadyGrouped = newErr(KindStateConflict, "task_already_grouped", "task already belongs to a task group")

	ErrTransient        = newErr(KindTransient, "transient", "transient store failure")
	ErrSettlementFailed = newErr(KindSettlementFailure, "settlement_failed", "settlement failed")
	ErrSideEffectFailed = newErr(KindSettlementFailure, "side_effect_failed", "post-approval side effect failed")
)

// Validation returns an invalid-input error carrying a caller-facing message.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Code: ErrInvalidInput.Code, Message: msg}
}

// Transient wraps a retryable store error (lock wait timeout, deadlock).
func Transient(err error) error {
	return &Error{Kind: KindTransient, Code: ErrTransient.Code, Message: ErrTransient.Message, Err: err}
}

// SettlementFailure wraps an error raised while posting bills for one submission.
func SettlementFailure(err error) error {
	return &Error{Kind: KindSettlementFailure, Code: ErrSettlementFailed.Code, Message: ErrSettlementFailed.Message, Err: err}
}

// SideEffectFailure wraps an error raised by a post-approval side effect.
func SideEffectFailure(err error) error {
	return &Error{Kind: KindSettlementFailure, Code: ErrSideEffectFailed.Code, Message: ErrSideEffectFailed.Message, Err: err}
}

// ItemFailure is one submission of a batch that committed but needs manual follow-up.
type ItemFailure struct {
	SubmissionID int64
	Err          error
}

// KindOf returns the Kind of the first Error in err's chain, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of the first Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
