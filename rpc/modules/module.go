package modules

import (
	"errors"
	"net/http"

	"colend/core/pricing"
	"colend/native/bank"
	nativecommon "colend/native/common"
	"colend/native/delegation"
	"colend/native/lending"
	"colend/native/rebalance"
)

const (
	codeUnauthorized  = -32001
	codeInvalidParams = -32602
	codeServerError   = -32000
	codeModuleError   = -32010
)

// ModuleError carries both the JSON-RPC error code and the HTTP status the
// transport should write.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// InvalidParams builds a parameter rejection with the supplied message.
func InvalidParams(message string) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message}
}

func moduleUnavailable(name string) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: name + " module not available"}
}

var invalidParamErrors = []error{
	lending.ErrInvalidAmount,
	lending.ErrInvalidRiskParameters,
	delegation.ErrInvalidAmount,
	delegation.ErrInvalidKind,
	bank.ErrInvalidAmount,
	bank.ErrInvalidAddress,
	rebalance.ErrInvalidConfig,
	pricing.ErrInvalidQuote,
}

var unauthorizedErrors = []error{
	lending.ErrUnauthorized,
	delegation.ErrUnauthorized,
	bank.ErrUnauthorized,
	pricing.ErrProofSigner,
	pricing.ErrProofProvider,
}

var notFoundErrors = []error{
	delegation.ErrDelegationNotFound,
	lending.ErrUnsupportedToken,
	pricing.ErrPriceUnavailable,
}

var domainErrors = []error{
	lending.ErrInsufficientBalance,
	lending.ErrInsufficientDeposit,
	lending.ErrUndercollateralized,
	lending.ErrExceedsCollateralCapacity,
	lending.ErrInsufficientLiquidity,
	lending.ErrNoOutstandingDebt,
	lending.ErrArithmeticOverflow,
	lending.ErrPositionHealthy,
	lending.ErrExceedsCloseFactor,
	lending.ErrInsufficientCollateralToSeize,
	lending.ErrSelfLiquidation,
	lending.ErrInsufficientReserves,
	delegation.ErrSelfDelegation,
	delegation.ErrDelegationExists,
	delegation.ErrDelegationRevoked,
	delegation.ErrExceedsDelegationCap,
	delegation.ErrStakeTransferFailed,
	delegation.ErrInsufficientStake,
	delegation.ErrPooledUnsupported,
	bank.ErrTransferFailed,
	bank.ErrInsufficientAllowance,
	rebalance.ErrNoRebalanceAction,
	pricing.ErrPriceStale,
	pricing.ErrPriceDeviation,
	pricing.ErrProofExpired,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapError classifies an engine error into the stable JSON-RPC code table.
// Domain rule rejections keep HTTP 400 with a dedicated code so clients can
// distinguish a ledger refusal from a malformed request.
func wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeServerError, Message: err.Error()}
	case matchesAny(err, unauthorizedErrors):
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
	case matchesAny(err, invalidParamErrors):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	case matchesAny(err, notFoundErrors):
		return &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeModuleError, Message: err.Error()}
	case matchesAny(err, domainErrors):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeModuleError, Message: err.Error()}
	default:
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}
