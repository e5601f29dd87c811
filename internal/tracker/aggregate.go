package tracker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const summaryCoinSample = 5

// zeroHash is the placeholder the upstream API reports for fills without a
// real on-chain transaction.
const zeroHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

// aggregateFills turns one cycle's newly seen fills into display events.
//
// Below the spam threshold (distinct coins traded this cycle), fills are
// grouped per (coin, side): a group of one keeps the fill's price, hash, fee
// and PnL verbatim; larger groups carry summed quantity, value, fee and PnL
// with a volume-weighted price and no hash. At or above the threshold the
// cycle collapses to at most two summary events, one per side, each carrying
// the distinct-coin count as quantity and a short coin sample as the label.
func aggregateFills(addr domain.Address, fills []domain.Fill, threshold int) []domain.Event {
	if len(fills) == 0 {
		return nil
	}

	coins := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		coins[f.Coin] = struct{}{}
	}
	if len(coins) >= threshold {
		return summarizeFills(addr, fills)
	}
	return groupFills(addr, fills)
}

type fillGroup struct {
	coin  string
	buy   bool
	fills []domain.Fill
}

func groupFills(addr domain.Address, fills []domain.Fill) []domain.Event {
	groups := make(map[string]*fillGroup)
	for _, f := range fills {
		key := f.Coin + "|" + f.Side
		g, ok := groups[key]
		if !ok {
			g = &fillGroup{coin: f.Coin, buy: f.IsBuy()}
			groups[key] = g
		}
		g.fills = append(g.fills, f)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	events := make([]domain.Event, 0, len(groups))
	for _, k := range keys {
		g := groups[k]
		if ev, ok := groupEvent(addr, g); ok {
			events = append(events, ev)
		}
	}
	return events
}

func groupEvent(addr domain.Address, g *fillGroup) (domain.Event, bool) {
	action := domain.ActionSell
	if g.buy {
		action = domain.ActionBuy
	}

	if len(g.fills) == 1 {
		f := g.fills[0]
		if f.Size <= 0 {
			return domain.Event{}, false
		}
		return domain.Event{
			ID:         uuid.NewString(),
			Timestamp:  f.Timestamp(),
			Address:    addr,
			Action:     action,
			Coin:       g.coin,
			Quantity:   f.Size,
			Price:      f.Price,
			ValueUSD:   f.Size * f.Price,
			Fee:        f.Fee,
			TxHash:     validTxHash(f.Hash),
			ClosedPnL:  f.ClosedPnL,
			OrderType:  domain.OrderTypeFilled,
			OrderCount: 1,
		}, true
	}

	var qty, value, fee, pnl float64
	var latest time.Time
	for _, f := range g.fills {
		qty += f.Size
		value += f.Size * f.Price
		fee += f.Fee
		pnl += f.ClosedPnL
		if ts := f.Timestamp(); ts.After(latest) {
			latest = ts
		}
	}
	if qty <= 0 {
		return domain.Event{}, false
	}
	return domain.Event{
		ID:         uuid.NewString(),
		Timestamp:  latest,
		Address:    addr,
		Action:     action,
		Coin:       g.coin,
		Quantity:   qty,
		Price:      value / qty,
		ValueUSD:   value,
		Fee:        fee,
		ClosedPnL:  pnl,
		OrderType:  domain.OrderTypeFilled,
		OrderCount: len(g.fills),
	}, true
}

func summarizeFills(addr domain.Address, fills []domain.Fill) []domain.Event {
	events := make([]domain.Event, 0, 2)
	for _, buy := range []bool{true, false} {
		var side []domain.Fill
		for _, f := range fills {
			if f.IsBuy() == buy {
				side = append(side, f)
			}
		}
		if len(side) == 0 {
			continue
		}

		coinSet := make(map[string]struct{})
		var value, fee, pnl float64
		for _, f := range side {
			coinSet[f.Coin] = struct{}{}
			value += f.Size * f.Price
			fee += f.Fee
			pnl += f.ClosedPnL
		}
		coins := make([]string, 0, len(coinSet))
		for c := range coinSet {
			coins = append(coins, c)
		}
		sort.Strings(coins)

		sample := coins
		suffix := ""
		if len(sample) > summaryCoinSample {
			sample = sample[:summaryCoinSample]
			suffix = ", ..."
		}
		label := fmt.Sprintf("%d coins: %s%s", len(coins), strings.Join(sample, ", "), suffix)

		action := domain.ActionSell
		if buy {
			action = domain.ActionBuy
		}
		events = append(events, domain.Event{
			ID:         uuid.NewString(),
			Timestamp:  time.Now().UTC(),
			Address:    addr,
			Action:     action,
			Coin:       label,
			Quantity:   float64(len(coins)),
			ValueUSD:   value,
			Fee:        fee,
			ClosedPnL:  pnl,
			OrderType:  domain.OrderTypeAggregated,
			OrderCount: len(side),
		})
	}
	return events
}

// validTxHash returns the hash if it looks like a real 32-byte transaction
// hash, nil otherwise. The upstream reports "", "0x" or the all-zero hash for
// fills without an on-chain transaction.
func validTxHash(h string) *string {
	if h == "" || h == "0x" || h == zeroHash || len(h) != 66 {
		return nil
	}
	return &h
}
