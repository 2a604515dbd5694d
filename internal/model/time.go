package model

import (
	"fmt"
	"time"
)

// EndOfTime is the +infinity sentinel on both time axes.
var EndOfTime = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// NormalizeTime strips the monotonic reading and converts to UTC so that
// times survive a round trip through the log unchanged.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Round(0).UTC()
}

// FormatTime renders a time in the log payload format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses the log payload format.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return NormalizeTime(t), nil
}

// TransactionInstant identifies one submission attempt. Ids and times are
// assigned together: ids strictly increase, times never decrease.
type TransactionInstant struct {
	TxID   int64     `json:"tx_id"`
	TxTime time.Time `json:"tx_time"`
}

// IsZero reports whether no instant has been assigned.
func (i TransactionInstant) IsZero() bool {
	return i.TxID == 0
}

// Equal compares id and time (ignoring location and monotonic readings).
func (i TransactionInstant) Equal(other TransactionInstant) bool {
	return i.TxID == other.TxID && i.TxTime.Equal(other.TxTime)
}

// Before orders instants by id.
func (i TransactionInstant) Before(other TransactionInstant) bool {
	return i.TxID < other.TxID
}

func (i TransactionInstant) String() string {
	return fmt.Sprintf("tx %d @ %s", i.TxID, FormatTime(i.TxTime))
}
