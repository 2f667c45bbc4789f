package colfetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Kind classifies a fetch failure.
type Kind int

// Failure kinds. Transport kinds come from a RangeReader or SizeLookup,
// footer kinds from discovery, assembly kinds from the scheduler.
const (
	KindUnknown Kind = iota
	KindRetryable
	KindNotFound
	KindVersionChanged
	KindAccessDenied
	KindOther
	KindTooSmall
	KindBadMagic
	KindFooterTooLarge
	KindMalformedMetadata
	KindGap
	KindOverlap
	KindCanceled
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindRetryable:         "transport.retryable",
	KindNotFound:          "transport.not_found",
	KindVersionChanged:    "transport.version_changed",
	KindAccessDenied:      "transport.access_denied",
	KindOther:             "transport.other",
	KindTooSmall:          "footer.too_small",
	KindBadMagic:          "footer.bad_magic",
	KindFooterTooLarge:    "footer.too_large",
	KindMalformedMetadata: "footer.malformed_metadata",
	KindGap:               "assembly.gap",
	KindOverlap:           "assembly.overlap",
	KindCanceled:          "canceled",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsFooter reports whether k is a footer discovery failure.
// Footer failures are fatal to a session.
func (k Kind) IsFooter() bool {
	return k >= KindTooSmall && k <= KindMalformedMetadata
}

// Error is a classified failure. The kind is preserved across every layer
// that wraps it.
type Error struct {
	Kind Kind

	// Op names the failing operation, e.g. "range read" or "footer".
	Op string

	// Offset and Length locate the affected range, when there is one.
	Offset int64
	Length int64

	// Status is the transport status code for KindOther, if known.
	Status int

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("colfetch: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Length > 0 {
		fmt.Fprintf(&b, " [offset=%d length=%d]", e.Offset, e.Length)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so the sentinel values below
// work with errors.Is regardless of range or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Error sentinel values, one per kind.
var (
	ErrRetryable         = &Error{Kind: KindRetryable}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrVersionChanged    = &Error{Kind: KindVersionChanged}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrOther             = &Error{Kind: KindOther}
	ErrTooSmall          = &Error{Kind: KindTooSmall}
	ErrBadMagic          = &Error{Kind: KindBadMagic}
	ErrFooterTooLarge    = &Error{Kind: KindFooterTooLarge}
	ErrMalformedMetadata = &Error{Kind: KindMalformedMetadata}
	ErrGap               = &Error{Kind: KindGap}
	ErrOverlap           = &Error{Kind: KindOverlap}
	ErrCanceled          = &Error{Kind: KindCanceled}
)

// ErrExecutorClosed is returned when work is submitted to a closed Executor.
var ErrExecutorClosed = errors.New("colfetch: executor closed")

// KindOf returns the kind of the first *Error in err's chain.
// Context errors map to KindCanceled; anything else unclassified maps to
// KindOther.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		return KindOf(agg.First)
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindOther
}

// classify wraps err as an *Error of its own kind, keeping an existing
// classification intact and annotating the range.
func classify(op string, offset, length int64, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Length == 0 && length > 0 {
			cp := *e
			cp.Offset, cp.Length = offset, length
			if cp.Op == "" {
				cp.Op = op
			}
			return &cp
		}
		return e
	}
	return &Error{Kind: KindOf(err), Op: op, Offset: offset, Length: length, Err: err}
}

// -----------------------------------------------------------------------------
// Aggregate failures
// -----------------------------------------------------------------------------

// AggregateError reports a fan-out that settled with failures.
//
// It is returned only after every sibling task finished, and carries the
// first concrete error encountered in addition to the full error set.
type AggregateError struct {
	// Scope names the fan-out: "object", "block", "column", or "pages".
	Scope string

	// Total is the number of sub-tasks in the fan-out.
	Total int

	// Failed counts sub-tasks that returned an error other than cancellation.
	Failed int

	// Cancelled counts sub-tasks that were cancelled or never issued.
	Cancelled int

	// First is the first concrete error observed.
	First error

	// Errs combines every sub-task error (see go.uber.org/multierr).
	Errs error
}

func (e *AggregateError) Error() string {
	msg := fmt.Sprintf("colfetch: %s read failed: %d of %d failed, %d cancelled", e.Scope, e.Failed, e.Total, e.Cancelled)
	if e.First != nil {
		msg += ": " + e.First.Error()
	}
	return msg
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return multierr.Errors(e.Errs)
}

// Kind returns the kind of the first concrete error.
func (e *AggregateError) Kind() Kind { return KindOf(e.First) }

// tally accumulates sub-task outcomes for an AggregateError.
// It is not safe for concurrent use; callers hold their own lock.
type tally struct {
	scope     string
	total     int
	failed    int
	cancelled int
	first     error
	errs      error
}

func (t *tally) add(err error) {
	if err == nil {
		return
	}
	t.errs = multierr.Append(t.errs, err)
	if KindOf(err) == KindCanceled {
		t.cancelled++
		return
	}
	t.failed++
	if t.first == nil {
		t.first = err
		// A nested aggregate reports its own first error as ours.
		var agg *AggregateError
		if errors.As(err, &agg) {
			t.first = agg.First
		}
	}
}

// note adds err to the error set without counting it as a sub-task.
func (t *tally) note(err error) {
	t.errs = multierr.Append(t.errs, err)
}

// err returns nil when every sub-task succeeded.
func (t *tally) err() error {
	if t.failed == 0 && t.cancelled == 0 {
		return nil
	}
	first := t.first
	if first == nil {
		first = multierr.Errors(t.errs)[0]
	}
	return &AggregateError{
		Scope:     t.scope,
		Total:     t.total,
		Failed:    t.failed,
		Cancelled: t.cancelled,
		First:     first,
		Errs:      t.errs,
	}
}
