package domain

import "time"

// Side codes used by the upstream API. "B" marks a buy; anything else
// (in practice "A", the ask side) is a sell.
const SideBuy = "B"

// Fill is a single executed trade reported by the upstream API. Fills are
// immutable once fetched.
type Fill struct {
	Coin      string
	Side      string // single-letter upstream side code
	Size      float64
	Price     float64
	TID       int64  // unique transaction id assigned upstream
	Hash      string // optional 0x-prefixed 32-byte tx hash; may be empty or zero
	Time      int64  // epoch milliseconds
	Fee       float64
	ClosedPnL float64
}

// Timestamp converts the epoch-millisecond fill time to a time.Time. A zero
// upstream time falls back to now, matching how the records are displayed.
func (f Fill) Timestamp() time.Time {
	if f.Time == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(f.Time).UTC()
}

// IsBuy reports whether the fill was on the buy side.
func (f Fill) IsBuy() bool { return f.Side == SideBuy }

// OpenOrder is a currently resting, unexecuted limit order. The set of open
// order ids for an address is the unit of comparison across polling cycles.
type OpenOrder struct {
	OID        string
	Coin       string
	Side       string // single-letter upstream side code
	Size       float64
	LimitPrice float64
	Time       int64 // epoch milliseconds
}

// Timestamp converts the epoch-millisecond order time to a time.Time.
func (o OpenOrder) Timestamp() time.Time {
	if o.Time == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(o.Time).UTC()
}

// IsBuy reports whether the resting order is on the buy side.
func (o OpenOrder) IsBuy() bool { return o.Side == SideBuy }
