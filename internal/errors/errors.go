package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// FileSystem errors - file I/O failures
	ErrorTypeFileSystem
	// External errors - rlog/co or target repository failures
	ErrorTypeExternal
	// Internal errors - unexpected internal state
	ErrorTypeInternal
	// A file's revision parents do not form a tree
	ErrorTypeMalformedRevisionTree
	// A tag resolves to different commits across files
	ErrorTypeAmbiguousTagAssignment
	// A branch has no discoverable branch point and is not a vendor branch
	ErrorTypeOrphanBranch
	// A commit candidate reached emission without revisions
	ErrorTypeEmptyCommitCandidate
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - reported, conversion continues
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Context keys used by the conversion error constructors.
const (
	KeyFiles     = "files"
	KeyRevisions = "revisions"
	KeyBranch    = "branch"
	KeyTag       = "tag"
	KeyCandidate = "candidate"
)

// Sentinels for errors.Is matching. Is compares only the error type.
var (
	ErrMalformedRevisionTree  = &Error{Type: ErrorTypeMalformedRevisionTree}
	ErrAmbiguousTagAssignment = &Error{Type: ErrorTypeAmbiguousTagAssignment}
	ErrOrphanBranch           = &Error{Type: ErrorTypeOrphanBranch}
	ErrEmptyCommitCandidate   = &Error{Type: ErrorTypeEmptyCommitCandidate}
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if files, ok := e.Context[KeyFiles].([]string); ok && len(files) > 0 {
		msg = fmt.Sprintf("%s (files: %s", msg, strings.Join(files, ", "))
		if revs, ok := e.Context[KeyRevisions].([]string); ok && len(revs) > 0 {
			msg = fmt.Sprintf("%s; revisions: %s", msg, strings.Join(revs, ", "))
		}
		msg += ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithLocations records the offending files and revisions.
func (e *Error) WithLocations(files, revisions []string) *Error {
	return e.WithContext(KeyFiles, files).WithContext(KeyRevisions, revisions)
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Context[k]))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// String returns the upper-case name of the error type.
func (t ErrorType) String() string {
	return typeString(t)
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeInternal:
		return "INTERNAL"
	case ErrorTypeMalformedRevisionTree:
		return "MALFORMED_REVISION_TREE"
	case ErrorTypeAmbiguousTagAssignment:
		return "AMBIGUOUS_TAG_ASSIGNMENT"
	case ErrorTypeOrphanBranch:
		return "ORPHAN_BRANCH"
	case ErrorTypeEmptyCommitCandidate:
		return "EMPTY_COMMIT_CANDIDATE"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Conversion errors

// MalformedRevisionTree reports a file whose revision parents do not form a tree.
func MalformedRevisionTree(file, revision, reason string) *Error {
	e := New(ErrorTypeMalformedRevisionTree, SeverityCritical,
		fmt.Sprintf("malformed revision tree: %s", reason))
	return e.WithLocations([]string{file}, []string{revision})
}

// AmbiguousTagAssignment reports a tag whose revisions resolve to different commits.
// Severity is critical unless the caller downgrades it for pick-latest reconciliation.
func AmbiguousTagAssignment(tag string, files, revisions []string) *Error {
	e := New(ErrorTypeAmbiguousTagAssignment, SeverityCritical,
		fmt.Sprintf("tag %q resolves to different commits across files", tag))
	return e.WithLocations(files, revisions).WithContext(KeyTag, tag)
}

// OrphanBranch reports a branch without a discoverable branch point.
func OrphanBranch(branch, reason string, files, revisions []string) *Error {
	e := New(ErrorTypeOrphanBranch, SeverityCritical,
		fmt.Sprintf("orphan branch %q: %s", branch, reason))
	return e.WithLocations(files, revisions).WithContext(KeyBranch, branch)
}

// EmptyCommitCandidate reports a candidate that reached emission with no revisions.
func EmptyCommitCandidate(candidate int) *Error {
	return New(ErrorTypeEmptyCommitCandidate, SeverityCritical,
		fmt.Sprintf("commit candidate %d has no revisions", candidate)).
		WithContext(KeyCandidate, candidate)
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// FileSystemErrorf wraps a filesystem error with formatting
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, fmt.Sprintf(format, args...))
}

// ExternalErrorf wraps an rlog/co or target failure with formatting
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityHigh, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}

	return false
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	if err == nil {
		return ErrorTypeInternal
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}

	return ErrorTypeInternal
}
