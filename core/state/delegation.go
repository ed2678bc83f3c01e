package state

import (
	"bytes"
	"math/big"
	"sort"

	"colend/crypto"
	"colend/native/delegation"
)

var (
	delegationPrefix      = []byte("delegation:")
	delegationOwnerPrefix = []byte("delegation/owner:")
	delegationNoncePrefix = []byte("delegation/nonce:")
)

func delegationKey(id [32]byte) []byte {
	return hashKey(delegationPrefix, id[:])
}

func delegationOwnerKey(addr []byte) []byte {
	return hashKey(delegationOwnerPrefix, addr)
}

func delegationNonceKey(addr []byte) []byte {
	return hashKey(delegationNoncePrefix, addr)
}

type storedDelegation struct {
	ID           []byte
	Delegator    []byte
	Delegate     []byte
	Symbol       string
	Kind         uint8
	MaxBorrow    *big.Int
	UsedBorrow   *big.Int
	StakeAmount  *big.Int
	ThresholdBps uint64
	Status       uint8
	CreatedAt    uint64
	UpdatedAt    uint64
}

func (s *storedDelegation) toDomain() (*delegation.Delegation, error) {
	delegator, err := crypto.NewAddress(s.Delegator)
	if err != nil {
		return nil, err
	}
	delegate, err := crypto.NewAddress(s.Delegate)
	if err != nil {
		return nil, err
	}
	d := &delegation.Delegation{
		Delegator:    delegator,
		Delegate:     delegate,
		Symbol:       s.Symbol,
		Kind:         delegation.Kind(s.Kind),
		MaxBorrow:    nonNil(s.MaxBorrow),
		UsedBorrow:   nonNil(s.UsedBorrow),
		StakeAmount:  nonNil(s.StakeAmount),
		ThresholdBps: s.ThresholdBps,
		Status:       delegation.Status(s.Status),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	copy(d.ID[:], s.ID)
	return d, nil
}

// DelegationGet returns the delegation by ID, or nil when unknown.
func (m *Manager) DelegationGet(id [32]byte) (*delegation.Delegation, error) {
	var stored storedDelegation
	ok, err := m.loadRLP(delegationKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return stored.toDomain()
}

// DelegationPut stores the delegation and maintains the delegator index.
func (m *Manager) DelegationPut(d *delegation.Delegation) error {
	stored := storedDelegation{
		ID:           append([]byte(nil), d.ID[:]...),
		Delegator:    d.Delegator.Bytes(),
		Delegate:     d.Delegate.Bytes(),
		Symbol:       d.Symbol,
		Kind:         uint8(d.Kind),
		MaxBorrow:    nonNil(d.MaxBorrow),
		UsedBorrow:   nonNil(d.UsedBorrow),
		StakeAmount:  nonNil(d.StakeAmount),
		ThresholdBps: d.ThresholdBps,
		Status:       uint8(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if err := m.storeRLP(delegationKey(d.ID), &stored); err != nil {
		return err
	}
	return m.appendSortedBytes(delegationOwnerKey(stored.Delegator), stored.ID)
}

// DelegationsByDelegator returns every delegation the delegator created, in
// ID order.
func (m *Manager) DelegationsByDelegator(addr crypto.Address) ([]*delegation.Delegation, error) {
	var ids [][]byte
	if _, err := m.loadRLP(delegationOwnerKey(addr.Bytes()), &ids); err != nil {
		return nil, err
	}
	list := make([]*delegation.Delegation, 0, len(ids))
	for _, raw := range ids {
		var id [32]byte
		copy(id[:], raw)
		d, err := m.DelegationGet(id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			list = append(list, d)
		}
	}
	return list, nil
}

// DelegationConsumeNonce returns the delegator's next creation nonce and
// advances the counter.
func (m *Manager) DelegationConsumeNonce(addr crypto.Address) (uint64, error) {
	key := delegationNonceKey(addr.Bytes())
	var nonce uint64
	if _, err := m.loadRLP(key, &nonce); err != nil {
		return 0, err
	}
	if err := m.storeRLP(key, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (m *Manager) appendSortedBytes(key []byte, entry []byte) error {
	var list [][]byte
	if _, err := m.loadRLP(key, &list); err != nil {
		return err
	}
	idx := sort.Search(len(list), func(i int) bool { return bytes.Compare(list[i], entry) >= 0 })
	if idx < len(list) && bytes.Equal(list[idx], entry) {
		return nil
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = append([]byte(nil), entry...)
	return m.storeRLP(key, list)
}
