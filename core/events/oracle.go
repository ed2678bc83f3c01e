package events

import (
	"math/big"
	"strconv"

	"colend/core/types"
)

// TypePriceUpdated is emitted when the oracle feed accepts a new quote.
const TypePriceUpdated = "oracle.price.updated"

// PriceUpdated captures an accepted oracle quote.
type PriceUpdated struct {
	Symbol    string
	Price     *big.Int
	Provider  string
	Timestamp uint64
}

// EventType implements the Event interface.
func (PriceUpdated) EventType() string { return TypePriceUpdated }

// Event renders the wire representation.
func (e PriceUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePriceUpdated,
		Attributes: map[string]string{
			"symbol":    normalizeAsset(e.Symbol),
			"price":     bigString(e.Price),
			"provider":  e.Provider,
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}
