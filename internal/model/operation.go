package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	errEmptyID      = errors.New("entity id is empty")
	errNilOperation = errors.New("nil operation")
)

// validateID rejects empty or non-UTF-8 ids. NUL is reserved as a key
// separator.
func validateID(id string) error {
	switch {
	case id == "":
		return errEmptyID
	case !utf8.ValidString(id):
		return fmt.Errorf("entity id %q is not valid UTF-8", id)
	case strings.IndexByte(id, 0) >= 0:
		return fmt.Errorf("entity id %q contains NUL", id)
	}
	return nil
}

// OpKind tags an Operation variant.
type OpKind string

const (
	OpPut            OpKind = "put"
	OpDelete         OpKind = "delete"
	OpMatch          OpKind = "match"
	OpMatchNotExists OpKind = "match-not-exists"
	OpEvict          OpKind = "evict"
)

// Operation is a sealed interface over the transaction operation variants:
// Put, Delete, Match, MatchNotExists and Evict.
type Operation interface {
	Kind() OpKind
	EntityID() string
	operation()
}

// Put writes Document over [ValidFrom, ValidTo).
//
// A zero ValidFrom means the transaction time. A zero ValidTo extends the
// document until the next version already on the entity's valid-time
// timeline, or to EndOfTime when there is none.
type Put struct {
	Document  Document
	ValidFrom time.Time
	ValidTo   time.Time

	// DocHash is the content address of Document. Filled in by Validate;
	// operations read back from the log always carry it, even when the body
	// has since been evicted.
	DocHash string
}

// Delete writes a tombstone over [ValidFrom, ValidTo) with the same
// defaulting rules as Put.
type Delete struct {
	ID        string
	ValidFrom time.Time
	ValidTo   time.Time
}

// Match aborts the transaction unless the entity resolves to Expected at
// ValidTime (zero = transaction time). A nil Expected matches absence.
type Match struct {
	ID        string
	Expected  *Document
	ValidTime time.Time

	// ExpectedHash is the content address of Expected ("" when nil).
	ExpectedHash string
}

// MatchNotExists aborts the transaction unless the entity is absent at
// ValidTime (zero = transaction time).
type MatchNotExists struct {
	ID        string
	ValidTime time.Time
}

// Evict removes all history of an entity on both time axes. Irreversible.
type Evict struct {
	ID string
}

func (Put) Kind() OpKind            { return OpPut }
func (Delete) Kind() OpKind         { return OpDelete }
func (Match) Kind() OpKind          { return OpMatch }
func (MatchNotExists) Kind() OpKind { return OpMatchNotExists }
func (Evict) Kind() OpKind          { return OpEvict }

func (op Put) EntityID() string            { return op.Document.ID }
func (op Delete) EntityID() string         { return op.ID }
func (op Match) EntityID() string          { return op.ID }
func (op MatchNotExists) EntityID() string { return op.ID }
func (op Evict) EntityID() string          { return op.ID }

func (Put) operation()            {}
func (Delete) operation()         {}
func (Match) operation()          {}
func (MatchNotExists) operation() {}
func (Evict) operation()          {}

// IsPredicate reports whether op only gates the transaction.
func IsPredicate(op Operation) bool {
	switch op.(type) {
	case Match, MatchNotExists:
		return true
	}
	return false
}

// ValidateOperations checks every operation and returns normalized copies
// with content addresses filled in. Failures are MALFORMED_OPERATION errors
// naming the offending position.
func ValidateOperations(ops []Operation) ([]Operation, error) {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		norm, err := validateOperation(op)
		if err != nil {
			e := &Error{
				Code:    ErrCodeMalformedOperation,
				Message: fmt.Sprintf("operation %d", i),
				Err:     err,
			}
			if op != nil {
				e.Message = fmt.Sprintf("operation %d (%s)", i, op.Kind())
				e.EntityID = op.EntityID()
			}
			return nil, e
		}
		out[i] = norm
	}
	return out, nil
}

func validateOperation(op Operation) (Operation, error) {
	switch o := op.(type) {
	case Put:
		if err := o.Document.Validate(); err != nil {
			return nil, err
		}
		from, to, err := validateSpan(o.ValidFrom, o.ValidTo)
		if err != nil {
			return nil, err
		}
		hash, err := o.Document.Hash()
		if err != nil {
			return nil, err
		}
		if o.Document.Attrs == nil {
			o.Document.Attrs = Object{}
		}
		o.ValidFrom, o.ValidTo, o.DocHash = from, to, hash
		return o, nil

	case Delete:
		if err := validateID(o.ID); err != nil {
			return nil, err
		}
		from, to, err := validateSpan(o.ValidFrom, o.ValidTo)
		if err != nil {
			return nil, err
		}
		o.ValidFrom, o.ValidTo = from, to
		return o, nil

	case Match:
		if o.ID == "" && o.Expected != nil {
			o.ID = o.Expected.ID
		}
		if err := validateID(o.ID); err != nil {
			return nil, err
		}
		o.ValidTime = NormalizeTime(o.ValidTime)
		o.ExpectedHash = ""
		if o.Expected != nil {
			if err := o.Expected.Validate(); err != nil {
				return nil, err
			}
			if o.Expected.ID != o.ID {
				return nil, fmt.Errorf("expected document id %q does not match %q", o.Expected.ID, o.ID)
			}
			hash, err := o.Expected.Hash()
			if err != nil {
				return nil, err
			}
			o.ExpectedHash = hash
		}
		return o, nil

	case MatchNotExists:
		if err := validateID(o.ID); err != nil {
			return nil, err
		}
		o.ValidTime = NormalizeTime(o.ValidTime)
		return o, nil

	case Evict:
		if err := validateID(o.ID); err != nil {
			return nil, err
		}
		return o, nil

	case nil:
		return nil, errNilOperation

	default:
		return nil, fmt.Errorf("unsupported operation type %T", op)
	}
}

// validateSpan enforces validFrom < validTo when both are given. An end
// without a start is rejected: the start would be the transaction time,
// which the caller cannot know in advance.
func validateSpan(from, to time.Time) (time.Time, time.Time, error) {
	from, to = NormalizeTime(from), NormalizeTime(to)
	if from.IsZero() && !to.IsZero() {
		return from, to, fmt.Errorf("valid_to given without valid_from")
	}
	if !to.IsZero() && !from.Before(to) {
		return from, to, fmt.Errorf("valid_from %s is not before valid_to %s", FormatTime(from), FormatTime(to))
	}
	if to.After(EndOfTime) || (!from.IsZero() && !from.Before(EndOfTime)) {
		return from, to, fmt.Errorf("valid time at or beyond end of time")
	}
	return from, to, nil
}
