package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"colend/crypto"
)

// PriceProofDomainV1 defines the domain separator used when signing price proofs.
const PriceProofDomainV1 = "COLEND_PRICE_V1"

var (
	// ErrProofSigner signals that the recovered signer is not the configured
	// oracle authority.
	ErrProofSigner = errors.New("pricing: proof signer not authorised")
	// ErrProofProvider signals that the proof provider is not on the allow list.
	ErrProofProvider = errors.New("pricing: proof provider not allowed")
	// ErrProofExpired signals that the proof timestamp is outside the accepted
	// window.
	ErrProofExpired = errors.New("pricing: proof timestamp out of window")
)

// PriceProof captures a signed oracle quote submission.
type PriceProof struct {
	Domain    string
	Provider  string
	Symbol    string
	Price     *big.Int
	Timestamp time.Time
	Signature []byte
}

// NewPriceProof constructs a price proof from the raw submission payload. The
// price is a decimal string at PriceScale precision.
func NewPriceProof(domain, provider, symbol, price string, ts int64, signature []byte) (*PriceProof, error) {
	trimmedDomain := strings.TrimSpace(domain)
	if trimmedDomain == "" {
		return nil, fmt.Errorf("price proof: domain required")
	}
	trimmedProvider := strings.TrimSpace(provider)
	if trimmedProvider == "" {
		return nil, fmt.Errorf("price proof: provider required")
	}
	normalizedSymbol := normalizeSymbol(symbol)
	if normalizedSymbol == "" {
		return nil, fmt.Errorf("price proof: symbol required")
	}
	trimmedPrice := strings.TrimSpace(price)
	if trimmedPrice == "" {
		return nil, fmt.Errorf("price proof: price required")
	}
	parsed, ok := new(big.Int).SetString(trimmedPrice, 10)
	if !ok {
		return nil, fmt.Errorf("price proof: invalid price %q", price)
	}
	if parsed.Sign() <= 0 {
		return nil, fmt.Errorf("price proof: price must be positive")
	}
	if ts <= 0 {
		return nil, fmt.Errorf("price proof: timestamp required")
	}
	proof := &PriceProof{
		Domain:    trimmedDomain,
		Provider:  trimmedProvider,
		Symbol:    normalizedSymbol,
		Price:     parsed,
		Timestamp: time.Unix(ts, 0).UTC(),
	}
	if len(signature) > 0 {
		proof.Signature = append([]byte(nil), signature...)
	}
	return proof, nil
}

// CanonicalMessage renders the canonical message used for signature
// verification.
func (p *PriceProof) CanonicalMessage() (string, error) {
	if p == nil {
		return "", fmt.Errorf("price proof not initialised")
	}
	domain := strings.ToUpper(strings.TrimSpace(p.Domain))
	if domain == "" {
		return "", fmt.Errorf("price proof: domain required")
	}
	provider := strings.ToLower(strings.TrimSpace(p.Provider))
	if provider == "" {
		return "", fmt.Errorf("price proof: provider required")
	}
	symbol := normalizeSymbol(p.Symbol)
	if symbol == "" {
		return "", fmt.Errorf("price proof: symbol required")
	}
	if p.Price == nil || p.Price.Sign() <= 0 {
		return "", fmt.Errorf("price proof: price required")
	}
	if p.Timestamp.IsZero() {
		return "", fmt.Errorf("price proof: timestamp required")
	}
	builder := strings.Builder{}
	builder.WriteString(domain)
	builder.WriteString("|provider=")
	builder.WriteString(provider)
	builder.WriteString("|symbol=")
	builder.WriteString(symbol)
	builder.WriteString("|price=")
	builder.WriteString(p.Price.String())
	builder.WriteString("|ts=")
	builder.WriteString(fmt.Sprintf("%d", p.Timestamp.UTC().Unix()))
	return builder.String(), nil
}

// Hash computes the keccak256 digest of the canonical message.
func (p *PriceProof) Hash() ([]byte, error) {
	message, err := p.CanonicalMessage()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(message)), nil
}

// RecoverSigner resolves the address that signed the proof.
func (p *PriceProof) RecoverSigner() (crypto.Address, error) {
	if p == nil || len(p.Signature) == 0 {
		return crypto.Address{}, fmt.Errorf("price proof: signature required")
	}
	digest, err := p.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.RecoverAddress(digest, p.Signature)
}

// ProofVerifier checks submitted proofs against the configured oracle
// authority and provider allow list.
type ProofVerifier struct {
	authority crypto.Address
	providers map[string]struct{}
	// maxSkew bounds how far a proof timestamp may sit from the verifier
	// clock, in either direction. Zero disables the check.
	maxSkew time.Duration
	now     func() time.Time
}

// NewProofVerifier constructs a verifier. An empty provider list admits any
// provider string.
func NewProofVerifier(authority crypto.Address, providers []string, maxSkew time.Duration) *ProofVerifier {
	verifier := &ProofVerifier{
		authority: authority,
		maxSkew:   maxSkew,
		now:       time.Now,
	}
	if len(providers) > 0 {
		verifier.providers = make(map[string]struct{}, len(providers))
		for _, provider := range providers {
			trimmed := strings.ToLower(strings.TrimSpace(provider))
			if trimmed != "" {
				verifier.providers[trimmed] = struct{}{}
			}
		}
	}
	return verifier
}

// SetClock overrides the verifier clock. Intended for tests.
func (v *ProofVerifier) SetClock(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify validates the proof signature, provider, and timestamp window.
func (v *ProofVerifier) Verify(proof *PriceProof) error {
	if v == nil {
		return fmt.Errorf("pricing: verifier not initialised")
	}
	if proof == nil {
		return fmt.Errorf("price proof not initialised")
	}
	if v.authority.IsZero() {
		return fmt.Errorf("pricing: oracle authority not configured")
	}
	if v.providers != nil {
		key := strings.ToLower(strings.TrimSpace(proof.Provider))
		if _, ok := v.providers[key]; !ok {
			return fmt.Errorf("%w: %s", ErrProofProvider, proof.Provider)
		}
	}
	if v.maxSkew > 0 {
		delta := v.now().UTC().Sub(proof.Timestamp.UTC())
		if delta < 0 {
			delta = -delta
		}
		if delta > v.maxSkew {
			return ErrProofExpired
		}
	}
	signer, err := proof.RecoverSigner()
	if err != nil {
		return err
	}
	if signer != v.authority {
		return fmt.Errorf("%w: %s", ErrProofSigner, signer)
	}
	return nil
}
