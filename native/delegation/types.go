package delegation

import (
	"math/big"

	"colend/crypto"
)

// StakeBps is the share of MaxBorrow the delegate locks as stake, in basis
// points.
const StakeBps = 1_000

// Kind distinguishes the delegation variants.
type Kind uint8

const (
	// KindIndividual grants a single delegate borrowing rights up to
	// MaxBorrow.
	KindIndividual Kind = iota + 1
	// KindPooled is recorded for forward compatibility. Borrowing against a
	// pooled delegation is rejected until its threshold semantics are
	// settled.
	KindPooled
)

// String renders the kind for events and RPC responses.
func (k Kind) String() string {
	switch k {
	case KindIndividual:
		return "individual"
	case KindPooled:
		return "pooled"
	default:
		return "unknown"
	}
}

// ParseKind maps the wire representation back onto a Kind.
func ParseKind(raw string) (Kind, bool) {
	switch raw {
	case "individual":
		return KindIndividual, true
	case "pooled":
		return KindPooled, true
	default:
		return 0, false
	}
}

// Status tracks the delegation lifecycle. Proposed only exists inside the
// creation operation; persisted delegations are Active or Revoked.
type Status uint8

const (
	StatusProposed Status = iota + 1
	StatusActive
	StatusRevoked
)

// String renders the status for events and RPC responses.
func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusActive:
		return "active"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Delegation grants a delegate the right to borrow against the delegator's
// collateral, bounded by MaxBorrow and secured by the delegate's stake. A
// delegation is denominated in a single symbol covering both the stake asset
// and the borrowable asset.
type Delegation struct {
	ID        [32]byte
	Delegator crypto.Address
	Delegate  crypto.Address
	Symbol    string
	Kind      Kind
	// MaxBorrow caps the cumulative delegated draw.
	MaxBorrow *big.Int
	// UsedBorrow is the cumulative amount drawn so far.
	UsedBorrow *big.Int
	// StakeAmount is the remaining locked stake. It shrinks when the
	// auto-rebalancer draws stake to defend the delegator's position.
	StakeAmount *big.Int
	// ThresholdBps is recorded for pooled delegations and unused otherwise.
	ThresholdBps uint64
	Status       Status
	CreatedAt    uint64
	UpdatedAt    uint64
}

// Clone returns a deep copy of the delegation.
func (d *Delegation) Clone() *Delegation {
	if d == nil {
		return nil
	}
	clone := *d
	if d.MaxBorrow != nil {
		clone.MaxBorrow = new(big.Int).Set(d.MaxBorrow)
	}
	if d.UsedBorrow != nil {
		clone.UsedBorrow = new(big.Int).Set(d.UsedBorrow)
	}
	if d.StakeAmount != nil {
		clone.StakeAmount = new(big.Int).Set(d.StakeAmount)
	}
	return &clone
}

func (d *Delegation) normalize() {
	if d.MaxBorrow == nil {
		d.MaxBorrow = big.NewInt(0)
	}
	if d.UsedBorrow == nil {
		d.UsedBorrow = big.NewInt(0)
	}
	if d.StakeAmount == nil {
		d.StakeAmount = big.NewInt(0)
	}
}

// Remaining returns the undrawn borrow headroom.
func (d *Delegation) Remaining() *big.Int {
	if d == nil || d.MaxBorrow == nil {
		return big.NewInt(0)
	}
	used := d.UsedBorrow
	if used == nil {
		used = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(d.MaxBorrow, used)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}
