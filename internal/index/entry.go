package index

import (
	"math"
	"time"

	"github.com/roach88/tempodb/internal/model"
)

// OpenInstant is the +infinity transaction-time bound of entries that have
// not been superseded.
var OpenInstant = model.TransactionInstant{TxID: math.MaxInt64, TxTime: model.EndOfTime}

// Entry is one bitemporal fact about an entity.
type Entry struct {
	EntityID  string
	ValidFrom time.Time
	ValidTo   time.Time
	TxFrom    model.TransactionInstant
	TxTo      model.TransactionInstant

	// DocHash is the document content address; "" marks a tombstone.
	DocHash string
}

// IsTombstone reports whether the entry records a deletion.
func (e Entry) IsTombstone() bool {
	return e.DocHash == ""
}

// IsOpen reports whether the entry has not been superseded.
func (e Entry) IsOpen() bool {
	return e.TxTo.TxID == OpenInstant.TxID
}

// Contains reports whether vt lies in [ValidFrom, ValidTo).
func (e Entry) Contains(vt time.Time) bool {
	return !vt.Before(e.ValidFrom) && vt.Before(e.ValidTo)
}

// VisibleAt reports whether the entry is part of the state as of the
// transaction with id basis: TxFrom <= basis < TxTo.
func (e Entry) VisibleAt(basis int64) bool {
	return e.TxFrom.TxID <= basis && basis < e.TxTo.TxID
}

// Overlaps reports whether the valid-time intervals of e and other intersect.
func (e Entry) Overlaps(other Entry) bool {
	return e.ValidFrom.Before(other.ValidTo) && other.ValidFrom.Before(e.ValidTo)
}

func lessByValidFrom(a, b Entry) bool {
	return a.ValidFrom.Before(b.ValidFrom)
}

func lessByValidFromTx(a, b Entry) bool {
	if !a.ValidFrom.Equal(b.ValidFrom) {
		return a.ValidFrom.Before(b.ValidFrom)
	}
	return a.TxFrom.TxID < b.TxFrom.TxID
}
