package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dope/core/types"
)

func normalizeAsset(asset string) string {
	return types.NormalizeSymbol(asset)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	return addr.Hex()
}

// Timed stamps an event with the ledger time of the operation that produced
// it.
type Timed struct {
	Inner Event
	At    uint64
}

// EventType satisfies the Event interface.
func (t Timed) EventType() string {
	if t.Inner == nil {
		return ""
	}
	return t.Inner.EventType()
}

// Event renders the inner event and attaches the timestamp.
func (t Timed) Event() *types.Event {
	rendered := Render(t.Inner)
	if rendered == nil {
		return nil
	}
	rendered.At = t.At
	return rendered
}
