package lending_test

import (
	"errors"
	"testing"
	"time"

	"colend/core"
	"colend/core/pricing"
	"colend/crypto"
	nativecommon "colend/native/common"
	"colend/native/delegation"
	"colend/native/rebalance"
)

func TestLendingPauseBlocksMutationsOnly(t *testing.T) {
	node, _ := newLedgerNode(t, nil, core.WithPauses(core.Pauses{Lending: true}))

	if _, err := node.Deposit(user, "COL", amount(100)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("deposit err = %v, want ErrModulePaused", err)
	}
	if _, err := node.Borrow(user, "USD", amount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("borrow err = %v, want ErrModulePaused", err)
	}
	if _, _, err := node.Repay(user, "USD", amount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("repay err = %v, want ErrModulePaused", err)
	}
	if _, err := node.Liquidate(liquidator, user, "USD", "COL", amount(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("liquidate err = %v, want ErrModulePaused", err)
	}

	// Reads and the other modules keep working.
	balance, err := node.BalanceOf(user, "COL")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(amount(100)) != 0 {
		t.Fatalf("balance = %s, want 100", balance)
	}
	if _, err := node.Markets(); err != nil {
		t.Fatalf("markets: %v", err)
	}
	if err := node.Transfer(whale, user, "USD", amount(10)); err != nil {
		t.Fatalf("bank transfer: %v", err)
	}
	if err := node.SetPrice("COL", amount(1_900), "test"); err != nil {
		t.Fatalf("set price: %v", err)
	}
}

func TestLendingPauseCascadesToDelegatedBorrow(t *testing.T) {
	node, _ := newLedgerNode(t, nil, core.WithPauses(core.Pauses{Lending: true}))

	if err := node.Approve(delegate, user, "USD", amount(1_000)); err != nil {
		t.Fatalf("approve stake: %v", err)
	}
	// Creating a delegation only moves stake, so it stays available.
	created, err := node.CreateDelegation(user, delegate, "USD", delegation.KindIndividual, amount(10_000), 11_000)
	if err != nil {
		t.Fatalf("create delegation: %v", err)
	}
	// Drawing on it reaches the paused ledger and must fail.
	if _, err := node.DelegatedBorrow(delegate, user, "USD", amount(100)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("delegated borrow err = %v, want ErrModulePaused", err)
	}
	if _, err := node.RevokeDelegation(user, created.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}

func TestDelegationAndRebalancePauses(t *testing.T) {
	node, _ := newLedgerNode(t, nil, core.WithPauses(core.Pauses{Delegation: true, Rebalance: true}))

	if err := node.Approve(delegate, user, "USD", amount(1_000)); err != nil {
		t.Fatalf("approve stake: %v", err)
	}
	if _, err := node.CreateDelegation(user, delegate, "USD", delegation.KindIndividual, amount(10_000), 11_000); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("create delegation err = %v, want ErrModulePaused", err)
	}
	if _, err := node.SetRebalanceConfig(user, &rebalance.Config{
		Owner:            user,
		Enabled:          true,
		TargetHealthBps:  11_000,
		TriggerHealthBps: 10_000,
	}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("set rebalance config err = %v, want ErrModulePaused", err)
	}
	if _, err := node.MaybeRebalance(user); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("rebalance err = %v, want ErrModulePaused", err)
	}

	// The ledger itself is not paused.
	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func signedProof(t *testing.T, key *crypto.PrivateKey, provider, symbol, price string, ts int64) *pricing.PriceProof {
	t.Helper()
	proof, err := pricing.NewPriceProof(pricing.PriceProofDomainV1, provider, symbol, price, ts, nil)
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	digest, err := proof.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	proof.Signature = sig
	return proof
}

func TestSignedProofUpdatesFeed(t *testing.T) {
	authority, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate authority: %v", err)
	}
	verifier := pricing.NewProofVerifier(authority.PubKey().Address(), []string{"chainfeed"}, time.Hour)
	node, clock := newLedgerNode(t, nil, core.WithProofVerifier(verifier))
	verifier.SetClock(clock.Now)

	proof := signedProof(t, authority, "chainfeed", "COL", "1800", clock.Now().Unix())
	if err := node.SubmitPriceProof(proof); err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	price, err := node.PriceFeed().Price("COL")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(amount(1_800)) != 0 {
		t.Fatalf("price = %s, want 1800", price)
	}
}

func TestProofGatekeeping(t *testing.T) {
	authority, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate authority: %v", err)
	}
	rogue, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate rogue: %v", err)
	}
	verifier := pricing.NewProofVerifier(authority.PubKey().Address(), []string{"chainfeed"}, time.Hour)
	node, clock := newLedgerNode(t, nil, core.WithProofVerifier(verifier))
	verifier.SetClock(clock.Now)
	now := clock.Now().Unix()

	if err := node.SubmitPriceProof(signedProof(t, authority, "rogue-feed", "COL", "1800", now)); !errors.Is(err, pricing.ErrProofProvider) {
		t.Fatalf("unknown provider err = %v, want ErrProofProvider", err)
	}
	if err := node.SubmitPriceProof(signedProof(t, authority, "chainfeed", "COL", "1800", now-7_200)); !errors.Is(err, pricing.ErrProofExpired) {
		t.Fatalf("expired proof err = %v, want ErrProofExpired", err)
	}
	if err := node.SubmitPriceProof(signedProof(t, rogue, "chainfeed", "COL", "1800", now)); !errors.Is(err, pricing.ErrProofSigner) {
		t.Fatalf("foreign signer err = %v, want ErrProofSigner", err)
	}

	// Rejected proofs must not touch the feed.
	price, err := node.PriceFeed().Price("COL")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(amount(2_000)) != 0 {
		t.Fatalf("price = %s, want untouched 2000", price)
	}
}

func TestProofRequiresConfiguredVerifier(t *testing.T) {
	authority, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate authority: %v", err)
	}
	node, clock := newLedgerNode(t, nil)

	if err := node.SubmitPriceProof(signedProof(t, authority, "chainfeed", "COL", "1800", clock.Now().Unix())); err == nil {
		t.Fatal("expected proof submission to fail without a verifier")
	}
}

func TestPriceDeviationGuard(t *testing.T) {
	node, _ := newLedgerNode(t, []pricing.ManualFeedOption{pricing.WithMaxDeviationBps(1_000)})

	// A 25% jump trips the guard; a 7.5% move passes.
	if err := node.SetPrice("COL", amount(2_500), "test"); !errors.Is(err, pricing.ErrPriceDeviation) {
		t.Fatalf("jump err = %v, want ErrPriceDeviation", err)
	}
	if err := node.SetPrice("COL", amount(2_150), "test"); err != nil {
		t.Fatalf("moderate move: %v", err)
	}
	price, err := node.PriceFeed().Price("COL")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(amount(2_150)) != 0 {
		t.Fatalf("price = %s, want 2150", price)
	}
}

func TestStalePriceFailsClosed(t *testing.T) {
	node, clock := newLedgerNode(t, []pricing.ManualFeedOption{pricing.WithMaxQuoteAge(3_600)})

	if _, err := node.Deposit(user, "COL", amount(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.advance(7_200)
	if _, err := node.Borrow(user, "USD", amount(1_000)); !errors.Is(err, pricing.ErrPriceStale) {
		t.Fatalf("borrow err = %v, want ErrPriceStale", err)
	}
	if _, err := node.RiskSnapshot(user); !errors.Is(err, pricing.ErrPriceStale) {
		t.Fatalf("snapshot err = %v, want ErrPriceStale", err)
	}

	// A fresh quote reopens the market.
	if err := node.SetPrice("COL", amount(2_000), "test"); err != nil {
		t.Fatalf("refresh COL: %v", err)
	}
	if err := node.SetPrice("USD", amount(1), "test"); err != nil {
		t.Fatalf("refresh USD: %v", err)
	}
	if _, err := node.Borrow(user, "USD", amount(1_000)); err != nil {
		t.Fatalf("borrow after refresh: %v", err)
	}
}
