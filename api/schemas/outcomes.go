package schemas

import (
	"errors"
	"fmt"
	"time"
)

// -- Error Taxonomy --

// ErrorKind classifies why a target did not succeed.
type ErrorKind string

const (
	ErrorNone                ErrorKind = ""
	ErrorNavigation          ErrorKind = "navigation_error"
	ErrorNoFormFound         ErrorKind = "no_form_found"
	ErrorHumanVerification   ErrorKind = "human_verification_required"
	ErrorFieldInjection      ErrorKind = "field_injection_failure"
	ErrorSubmissionUncertain ErrorKind = "submission_unconfirmed"
	ErrorUnexpected          ErrorKind = "unexpected"
)

var (
	ErrNavigation            = errors.New("navigation failed")
	ErrNoFormFound           = errors.New("no form found")
	ErrHumanVerification     = errors.New("human verification required")
	ErrFieldInjection        = errors.New("field injection failed")
	ErrSubmissionUnconfirmed = errors.New("submission unconfirmed")
	ErrUnexpected            = errors.New("unexpected error")
)

var kindSentinels = map[ErrorKind]error{
	ErrorNavigation:          ErrNavigation,
	ErrorNoFormFound:         ErrNoFormFound,
	ErrorHumanVerification:   ErrHumanVerification,
	ErrorFieldInjection:      ErrFieldInjection,
	ErrorSubmissionUncertain: ErrSubmissionUnconfirmed,
	ErrorUnexpected:          ErrUnexpected,
}

// ProcessingError attaches an ErrorKind to an underlying cause.
type ProcessingError struct {
	Kind ErrorKind
	Err  error
}

// NewError builds a ProcessingError. A nil cause falls back to the kind's sentinel.
func NewError(kind ErrorKind, err error) *ProcessingError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &ProcessingError{Kind: kind, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind so callers can use errors.Is
// without caring about the concrete cause.
func (e *ProcessingError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf extracts the ErrorKind from err, defaulting to ErrorUnexpected.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ErrorUnexpected
}

// -- Outcome Schemas --

// Status is the final disposition of a target.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusManualRequired Status = "manual_required"
	StatusSkipped        Status = "skipped"
)

// InjectionResult records the outcome of writing one field.
type InjectionResult struct {
	Field   FieldDescriptor `json:"field"`
	Type    SemanticType    `json:"type"`
	Value   string          `json:"value"`
	Success bool            `json:"success"`
	// Method is the 1-based strategy that verified, 0 when none did.
	Method int   `json:"method"`
	Err    error `json:"-"`
}

// SignalKind identifies which evidence confirmed a submission.
type SignalKind string

const (
	SignalNone      SignalKind = "none"
	SignalURL       SignalKind = "url"
	SignalContent   SignalKind = "content"
	SignalTitle     SignalKind = "title"
	SignalURLChange SignalKind = "url_change"
)

// SubmissionOutcome is the result of the submission phase.
type SubmissionOutcome struct {
	Attempted      bool       `json:"attempted"`
	Success        bool       `json:"success"`
	FinalURL       string     `json:"final_url"`
	Signal         SignalKind `json:"signal"`
	ConfirmStep    bool       `json:"confirm_step"`
	ManualRequired bool       `json:"manual_required"`
	Detail         string     `json:"detail,omitempty"`
}

// ProcessingOutcome is created once per target and never changed afterwards.
type ProcessingOutcome struct {
	Target           TargetRecord    `json:"target"`
	Status           Status          `json:"status"`
	FilledFieldCount int             `json:"filled_field_count"`
	DetectionMethod  DetectionMethod `json:"detection_method,omitempty"`
	SourceURL        string          `json:"source_url,omitempty"`
	Message          string          `json:"message"`
	ErrorKind        ErrorKind       `json:"error_type,omitempty"`
	ErrorDetails     string          `json:"error_details,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// Duration is the wall time spent on the target.
func (o ProcessingOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// RunMode selects how a batch is driven.
type RunMode string

const (
	ModeSequential RunMode = "sequential"
	ModeSupervised RunMode = "supervised"
)

// RunSummary aggregates a finished batch.
type RunSummary struct {
	RunID          string              `json:"run_id"`
	Mode           RunMode             `json:"mode"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     time.Time           `json:"finished_at"`
	Processed      int                 `json:"processed"`
	Succeeded      int                 `json:"succeeded"`
	Failed         int                 `json:"failed"`
	ManualRequired int                 `json:"manual_required"`
	Skipped        int                 `json:"skipped"`
	PendingTabs    []string            `json:"pending_tabs,omitempty"`
	Outcomes       []ProcessingOutcome `json:"outcomes"`
}
