package delegation

import "errors"

var (
	errNilState   = errors.New("delegation: state not configured")
	errNilAdapter = errors.New("delegation: token adapter not configured")
	errNilLedger  = errors.New("delegation: ledger not configured")

	// ErrInvalidAmount rejects zero, negative, or missing amounts.
	ErrInvalidAmount = errors.New("delegation: amount must be positive")
	// ErrInvalidKind rejects unknown delegation kinds.
	ErrInvalidKind = errors.New("delegation: unknown delegation kind")
	// ErrSelfDelegation rejects delegations where delegator and delegate are
	// the same principal.
	ErrSelfDelegation = errors.New("delegation: delegator and delegate must differ")
	// ErrDelegationExists rejects a second active delegation between the same
	// delegator and delegate.
	ErrDelegationExists = errors.New("delegation: active delegation already exists")
	// ErrDelegationNotFound signals no active delegation matches the request.
	ErrDelegationNotFound = errors.New("delegation: delegation not found")
	// ErrDelegationRevoked rejects operations against a revoked delegation.
	ErrDelegationRevoked = errors.New("delegation: delegation revoked")
	// ErrExceedsDelegationCap rejects draws beyond MaxBorrow.
	ErrExceedsDelegationCap = errors.New("delegation: draw exceeds delegation cap")
	// ErrStakeTransferFailed signals the delegate could not fund the stake.
	ErrStakeTransferFailed = errors.New("delegation: stake transfer failed")
	// ErrInsufficientStake rejects stake draws beyond the remaining stake.
	ErrInsufficientStake = errors.New("delegation: insufficient stake")
	// ErrPooledUnsupported flags the recorded-but-unimplemented pooled
	// variant.
	ErrPooledUnsupported = errors.New("delegation: pooled delegations cannot borrow yet")
	// ErrUnauthorized rejects callers without the required role or ownership.
	ErrUnauthorized = errors.New("delegation: caller not authorised")
)
