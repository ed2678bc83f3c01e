package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of every bech32 account address.
const AddressPrefix = "col"

// AddressLength is the raw byte length of an account address.
const AddressLength = 20

// Address represents a 20-byte account address.
type Address struct {
	raw [AddressLength]byte
}

// NewAddress builds an Address from raw bytes.
func NewAddress(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	var a Address
	copy(a.raw[:], b)
	return a, nil
}

// MustNewAddress builds an Address from raw bytes and panics on invalid input.
// Intended for tests and hard-coded module addresses.
func MustNewAddress(b []byte) Address {
	a, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return a
}

// ModuleAddress derives the deterministic vault address owned by a module.
func ModuleAddress(name string) Address {
	digest := crypto.Keccak256([]byte("colend/module/" + name))
	return MustNewAddress(digest[len(digest)-AddressLength:])
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.raw[:])
	return out
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	var zero [AddressLength]byte
	return a.raw == zero
}

// Compare orders addresses lexicographically by raw bytes.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a.raw[:], b.raw[:])
}

// DecodeAddress parses a bech32 account address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable secp256k1 signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto: digest must be 32 bytes, got %d", len(digest))
	}
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	return MustNewAddress(crypto.PubkeyToAddress(*k.PublicKey).Bytes())
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// RecoverAddress returns the signer address for a recoverable signature over
// the given 32-byte digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(digest) != 32 {
		return Address{}, fmt.Errorf("crypto: digest must be 32 bytes, got %d", len(digest))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return MustNewAddress(crypto.PubkeyToAddress(*pub).Bytes()), nil
}
