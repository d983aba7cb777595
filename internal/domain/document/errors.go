package document

import (
	"fmt"
	"strings"
)

// ErrorKind classifies storage and delivery failures
type ErrorKind string

const (
	ErrKindAuth             ErrorKind = "AUTH"
	ErrKindUpload           ErrorKind = "UPLOAD"
	ErrKindDownload         ErrorKind = "DOWNLOAD"
	ErrKindMove             ErrorKind = "MOVE"
	ErrKindInvalidLocator   ErrorKind = "INVALID_LOCATOR"
	ErrKindUnsupportedMove  ErrorKind = "UNSUPPORTED_MOVE"
	ErrKindTimeout          ErrorKind = "TIMEOUT"
	ErrKindPrint            ErrorKind = "PRINT"
	ErrKindEmail            ErrorKind = "EMAIL"
	ErrKindRender           ErrorKind = "RENDER"
	ErrKindInvalidInput     ErrorKind = "INVALID_INPUT"
	ErrKindBackendNotActive ErrorKind = "BACKEND_NOT_ACTIVE"
)

// Error is a classified failure raised by a storage backend or a delivery
// collaborator. Sentinel values of this type only carry a Kind and match any
// Error of the same Kind through errors.Is.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	// Unprocessed lists object keys left untouched by a partially failed folder move.
	Unprocessed []string
	Err         error
}

// Sentinels for errors.Is checks
var (
	ErrAuth             = &Error{Kind: ErrKindAuth}
	ErrUpload           = &Error{Kind: ErrKindUpload}
	ErrDownload         = &Error{Kind: ErrKindDownload}
	ErrMove             = &Error{Kind: ErrKindMove}
	ErrInvalidLocator   = &Error{Kind: ErrKindInvalidLocator}
	ErrUnsupportedMove  = &Error{Kind: ErrKindUnsupportedMove}
	ErrTimeout          = &Error{Kind: ErrKindTimeout}
	ErrPrint            = &Error{Kind: ErrKindPrint}
	ErrEmail            = &Error{Kind: ErrKindEmail}
	ErrRender           = &Error{Kind: ErrKindRender}
	ErrInvalidInput     = &Error{Kind: ErrKindInvalidInput}
	ErrBackendNotActive = &Error{Kind: ErrKindBackendNotActive}
)

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(string(e.Kind)) + " failed")
	}
	if len(e.Unprocessed) > 0 {
		fmt.Fprintf(&b, " (unprocessed: %s)", strings.Join(e.Unprocessed, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Err != nil {
		return t == e
	}
	return t.Kind == e.Kind
}

// NewError creates a classified error
func NewError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// NewAuthError creates an authentication failure
func NewAuthError(op, message string, cause error) *Error {
	return NewError(ErrKindAuth, op, message, cause)
}

// NewUploadError creates an upload failure
func NewUploadError(op, message string, cause error) *Error {
	return NewError(ErrKindUpload, op, message, cause)
}

// NewDownloadError creates a download failure
func NewDownloadError(op, message string, cause error) *Error {
	return NewError(ErrKindDownload, op, message, cause)
}

// NewMoveError creates a move failure. unprocessed may be nil.
func NewMoveError(op, message string, unprocessed []string, cause error) *Error {
	e := NewError(ErrKindMove, op, message, cause)
	e.Unprocessed = unprocessed
	return e
}

// NewInvalidLocatorError creates a locator parsing failure
func NewInvalidLocatorError(op, message string) *Error {
	return NewError(ErrKindInvalidLocator, op, message, nil)
}

// NewTimeoutError creates a timeout failure
func NewTimeoutError(op, message string, cause error) *Error {
	return NewError(ErrKindTimeout, op, message, cause)
}

// NewPrintError creates a print handoff failure
func NewPrintError(op, message string, cause error) *Error {
	return NewError(ErrKindPrint, op, message, cause)
}

// NewEmailError creates an email delivery failure
func NewEmailError(op, message string, cause error) *Error {
	return NewError(ErrKindEmail, op, message, cause)
}

// KindOf returns the ErrorKind of the outermost classified error in err's
// chain, or an empty kind if none is present.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Stage names the step of a document pipeline that failed
type Stage string

const (
	StageRender Stage = "render"
	StageStore  Stage = "store"
	StagePrint  Stage = "print"
	StageEmail  Stage = "email"
	StageMove   Stage = "move"
	StageFetch  Stage = "fetch"
)

// StageError wraps a pipeline failure with the stage it happened in
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause
func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err with the stage name; nil stays nil
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
