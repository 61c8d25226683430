package engine

import (
	"time"

	"github.com/microtrade/ledger-engine/internal/model"
)

// Event types.
const (
	EventTradeAppended  = "trade_appended"
	EventLedgerCleared  = "ledger_cleared"
	EventLedgerImported = "ledger_imported"
)

// Event is a change to the ledger.
type Event struct {
	Type     string             `json:"type"`
	Trade    *model.TradeRecord `json:"trade,omitempty"`
	Position *model.Position    `json:"position,omitempty"`
	Count    int                `json:"count,omitempty"`
	At       time.Time          `json:"at"`
}

// Listener receives ledger events. Publish is called with the writer lock
// held and must not block.
type Listener interface {
	Publish(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) Publish(ev Event) { f(ev) }
