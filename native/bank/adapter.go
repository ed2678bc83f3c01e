package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"colend/crypto"
	nativecommon "colend/native/common"
)

var (
	errNilState = errors.New("bank: state not configured")

	// ErrInvalidAmount rejects zero, negative, or missing amounts.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
	// ErrInvalidAddress rejects zero addresses on value-moving operations.
	ErrInvalidAddress = errors.New("bank: invalid address")
	// ErrTransferFailed signals the payer's balance cannot cover the
	// transfer.
	ErrTransferFailed = errors.New("bank: transfer failed")
	// ErrInsufficientAllowance signals the spender's allowance cannot cover
	// the draw.
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	// ErrUnauthorized rejects mints from non-authority callers.
	ErrUnauthorized = errors.New("bank: caller not authorised")
)

// adapterState is the persistence surface the adapter depends on. It is
// satisfied by *state.Manager.
type adapterState interface {
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	SetBalance(addr crypto.Address, symbol string, amount *big.Int) error
	Allowance(owner, spender crypto.Address, symbol string) (*big.Int, error)
	SetAllowance(owner, spender crypto.Address, symbol string, amount *big.Int) error
	HasRole(role string, addr []byte) bool
}

// Adapter implements fungible balance accounting for every supported asset:
// balances, allowances, and the vault transfers the lending and delegation
// engines run as their final interaction step.
type Adapter struct {
	state adapterState
}

// NewAdapter constructs an adapter over the given state.
func NewAdapter(state adapterState) *Adapter {
	return &Adapter{state: state}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (a *Adapter) ready() error {
	if a == nil || a.state == nil {
		return errNilState
	}
	return nil
}

// BalanceOf returns the transferable balance for (addr, symbol).
func (a *Adapter) BalanceOf(addr crypto.Address, symbol string) (*big.Int, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.state.Balance(addr, normalizeSymbol(symbol))
}

// Mint credits amount of symbol to the recipient. Only the lending admin
// authority may mint.
func (a *Adapter) Mint(authority, to crypto.Address, symbol string, amount *big.Int) (*big.Int, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if !a.state.HasRole(nativecommon.RoleLendingAdmin, authority.Bytes()) {
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if to.IsZero() {
		return nil, ErrInvalidAddress
	}
	symbol = normalizeSymbol(symbol)
	balance, err := a.state.Balance(to, symbol)
	if err != nil {
		return nil, err
	}
	balance = new(big.Int).Add(balance, amount)
	if err := a.state.SetBalance(to, symbol, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Transfer moves amount of symbol from one account to another. Transfers
// never partially apply; the enclosing transaction discards all effects on
// failure.
func (a *Adapter) Transfer(from, to crypto.Address, symbol string, amount *big.Int) error {
	if err := a.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	symbol = normalizeSymbol(symbol)
	fromBalance, err := a.state.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s %s", ErrTransferFailed, fromBalance, amount, symbol)
	}
	if from.Compare(to) == 0 {
		return nil
	}
	toBalance, err := a.state.Balance(to, symbol)
	if err != nil {
		return err
	}
	if err := a.state.SetBalance(from, symbol, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return a.state.SetBalance(to, symbol, new(big.Int).Add(toBalance, amount))
}

// Approve grants spender the right to draw up to amount of symbol from the
// owner's balance. Amount overwrites any previous allowance; zero revokes.
func (a *Adapter) Approve(owner, spender crypto.Address, symbol string, amount *big.Int) error {
	if err := a.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if owner.IsZero() || spender.IsZero() {
		return ErrInvalidAddress
	}
	return a.state.SetAllowance(owner, spender, normalizeSymbol(symbol), amount)
}

// Allowance returns the remaining amount spender may draw from owner.
func (a *Adapter) Allowance(owner, spender crypto.Address, symbol string) (*big.Int, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.state.Allowance(owner, spender, normalizeSymbol(symbol))
}

// TransferFrom moves amount of the owner's symbol to the recipient, consuming
// the spender's allowance.
func (a *Adapter) TransferFrom(spender, owner, to crypto.Address, symbol string, amount *big.Int) error {
	if err := a.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	symbol = normalizeSymbol(symbol)
	allowance, err := a.state.Allowance(owner, spender, symbol)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s below %s %s", ErrInsufficientAllowance, allowance, amount, symbol)
	}
	if err := a.state.SetAllowance(owner, spender, symbol, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return a.Transfer(owner, to, symbol, amount)
}
