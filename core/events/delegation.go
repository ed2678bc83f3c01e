package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"colend/core/types"
	"colend/crypto"
)

const (
	// TypeDelegationCreated is emitted when a delegation is created and its
	// stake locked.
	TypeDelegationCreated = "delegation.created"
	// TypeDelegationRevoked is emitted when a delegator revokes a delegation
	// and the remaining stake is released.
	TypeDelegationRevoked = "delegation.revoked"
	// TypeDelegationBorrow is emitted when a delegate draws a borrow against
	// the delegator's collateral.
	TypeDelegationBorrow = "delegation.borrow"
)

// DelegationCreated captures a newly activated delegation.
type DelegationCreated struct {
	ID        [32]byte
	Delegator crypto.Address
	Delegate  crypto.Address
	Symbol    string
	Kind      string
	MaxBorrow *big.Int
	Stake     *big.Int
	Timestamp uint64
}

// EventType implements the Event interface.
func (DelegationCreated) EventType() string { return TypeDelegationCreated }

// Event renders the wire representation.
func (e DelegationCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegationCreated,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"delegator": addrString(e.Delegator),
			"delegate":  addrString(e.Delegate),
			"symbol":    normalizeAsset(e.Symbol),
			"kind":      e.Kind,
			"maxBorrow": bigString(e.MaxBorrow),
			"stake":     bigString(e.Stake),
			"timestamp": strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// DelegationRevoked captures a revoked delegation.
type DelegationRevoked struct {
	ID            [32]byte
	Delegator     crypto.Address
	Delegate      crypto.Address
	Symbol        string
	StakeReturned *big.Int
	Timestamp     uint64
}

// EventType implements the Event interface.
func (DelegationRevoked) EventType() string { return TypeDelegationRevoked }

// Event renders the wire representation.
func (e DelegationRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegationRevoked,
		Attributes: map[string]string{
			"id":            hex.EncodeToString(e.ID[:]),
			"delegator":     addrString(e.Delegator),
			"delegate":      addrString(e.Delegate),
			"symbol":        normalizeAsset(e.Symbol),
			"stakeReturned": bigString(e.StakeReturned),
			"timestamp":     strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// DelegationBorrow captures a delegated borrow drawn by the delegate.
type DelegationBorrow struct {
	ID         [32]byte
	Delegator  crypto.Address
	Delegate   crypto.Address
	Symbol     string
	Amount     *big.Int
	UsedBorrow *big.Int
	Timestamp  uint64
}

// EventType implements the Event interface.
func (DelegationBorrow) EventType() string { return TypeDelegationBorrow }

// Event renders the wire representation.
func (e DelegationBorrow) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegationBorrow,
		Attributes: map[string]string{
			"id":         hex.EncodeToString(e.ID[:]),
			"delegator":  addrString(e.Delegator),
			"delegate":   addrString(e.Delegate),
			"symbol":     normalizeAsset(e.Symbol),
			"amount":     bigString(e.Amount),
			"usedBorrow": bigString(e.UsedBorrow),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
		},
	}
}
