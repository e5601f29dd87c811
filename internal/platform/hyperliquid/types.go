package hyperliquid

import (
	"fmt"
	"strconv"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// The info API encodes decimal quantities as strings to avoid float
// truncation on the wire.

type apiFill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"`
	Time      int64  `json:"time"`
	Hash      string `json:"hash"`
	TID       int64  `json:"tid"`
	Fee       string `json:"fee"`
	ClosedPnL string `json:"closedPnl"`
}

func (f apiFill) toDomain() (domain.Fill, error) {
	if f.Coin == "" {
		return domain.Fill{}, fmt.Errorf("missing coin")
	}
	if f.TID == 0 {
		return domain.Fill{}, fmt.Errorf("missing tid")
	}
	px, err := parseDecimal("px", f.Px)
	if err != nil {
		return domain.Fill{}, err
	}
	sz, err := parseDecimal("sz", f.Sz)
	if err != nil {
		return domain.Fill{}, err
	}
	fee := parseDecimalLenient(f.Fee)
	pnl := parseDecimalLenient(f.ClosedPnL)
	return domain.Fill{
		Coin:      f.Coin,
		Side:      f.Side,
		Size:      sz,
		Price:     px,
		TID:       f.TID,
		Hash:      f.Hash,
		Time:      f.Time,
		Fee:       fee,
		ClosedPnL: pnl,
	}, nil
}

type apiOpenOrder struct {
	Coin      string `json:"coin"`
	LimitPx   string `json:"limitPx"`
	OID       int64  `json:"oid"`
	Side      string `json:"side"`
	Sz        string `json:"sz"`
	Timestamp int64  `json:"timestamp"`
}

func (o apiOpenOrder) toDomain() (domain.OpenOrder, error) {
	if o.Coin == "" {
		return domain.OpenOrder{}, fmt.Errorf("missing coin")
	}
	if o.OID == 0 {
		return domain.OpenOrder{}, fmt.Errorf("missing oid")
	}
	px, err := parseDecimal("limitPx", o.LimitPx)
	if err != nil {
		return domain.OpenOrder{}, err
	}
	sz, err := parseDecimal("sz", o.Sz)
	if err != nil {
		return domain.OpenOrder{}, err
	}
	return domain.OpenOrder{
		OID:        strconv.FormatInt(o.OID, 10),
		Coin:       o.Coin,
		Side:       o.Side,
		Size:       sz,
		LimitPrice: px,
		Time:       o.Timestamp,
	}, nil
}

func parseDecimal(field, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", field, s, err)
	}
	return v, nil
}

// parseDecimalLenient tolerates absent optional fields (fee, closed PnL).
func parseDecimalLenient(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
