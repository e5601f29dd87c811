package domain

import "time"

// Event actions. Limit actions mark orders that have not executed yet.
const (
	ActionBuy       = "BUY"
	ActionSell      = "SELL"
	ActionBuyLimit  = "BUY LIMIT"
	ActionSellLimit = "SELL LIMIT"
)

// Event order types.
const (
	OrderTypeFilled     = "FILLED"
	OrderTypeLimitOpen  = "LIMIT_OPEN"
	OrderTypeAggregated = "AGGREGATED"
)

// Event is the engine's output record: one classified, deduplicated
// transaction (or per-cycle summary) for a watched address. Events are
// created only by the address watcher and never mutated afterwards;
// ownership passes to whichever collaborator receives them.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Address   Address   `json:"address"`
	Action    string    `json:"action"`
	Coin      string    `json:"coin"` // coin symbol, or a summary label such as "6 coins: ETH, BTC, ..."
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	ValueUSD  float64   `json:"value_usd"`
	Fee       float64   `json:"fee"`
	TxHash    *string   `json:"tx_hash"` // nil for unexecuted limit orders and aggregates
	ClosedPnL float64   `json:"closed_pnl"`
	OrderType string    `json:"order_type"`

	// OrderCount is the number of underlying upstream records behind this
	// event: 1 for a single fill or limit order, the group size for
	// aggregated events.
	OrderCount int `json:"order_count"`
}
