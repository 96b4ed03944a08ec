package authkit_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authkit"
)

func TestTOTPSetupActivateScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	url, err := h.engine.SetupTOTP(ctx, "u1", "alice", "Svc")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !strings.HasPrefix(url, "otpauth://totp/") || !strings.Contains(url, "issuer=Svc") {
		t.Fatalf("unexpected provisioning url %q", url)
	}
	secret := secretFromURL(t, url)
	if secret == "" {
		t.Fatal("expected base32 secret in url")
	}

	wrong := "000000"
	if h.code(t, secret) == wrong {
		wrong = "999999"
	}
	if err := h.engine.ActivateTOTP(ctx, "u1", wrong); !errors.Is(err, authkit.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if needs, _ := h.engine.NeedsMFA(ctx, "u1"); needs {
		t.Fatal("failed activation must not enable mfa")
	}

	if err := h.engine.ActivateTOTP(ctx, "u1", h.code(t, secret)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if needs, _ := h.engine.NeedsMFA(ctx, "u1"); !needs {
		t.Fatal("expected mfa after activation")
	}
}

func TestActivateWithoutPendingSetup(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.ActivateTOTP(context.Background(), "u1", "123456"); !errors.Is(err, authkit.ErrNoPendingSetup) {
		t.Fatalf("expected ErrNoPendingSetup, got %v", err)
	}
}

func TestSetupSupersedesEarlierPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.engine.SetupTOTP(ctx, "u1", "alice", "Svc")
	if err != nil {
		t.Fatalf("first setup: %v", err)
	}
	second, err := h.engine.SetupTOTP(ctx, "u1", "alice", "Svc")
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}

	oldCode := h.code(t, secretFromURL(t, first))
	newCode := h.code(t, secretFromURL(t, second))
	if oldCode != newCode {
		if err := h.engine.ActivateTOTP(ctx, "u1", oldCode); !errors.Is(err, authkit.ErrInvalidCode) {
			t.Fatalf("expected superseded secret to fail, got %v", err)
		}
	}
	if err := h.engine.ActivateTOTP(ctx, "u1", newCode); err != nil {
		t.Fatalf("activate newest: %v", err)
	}
}

func TestVerifyTOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.engine.VerifyTOTP(ctx, "u1", "123456"); !errors.Is(err, authkit.ErrNoActiveFactor) {
		t.Fatalf("expected ErrNoActiveFactor, got %v", err)
	}

	secret := h.enrollTOTP(t)
	code := h.code(t, secret)
	if err := h.engine.VerifyTOTP(ctx, "u1", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := h.engine.VerifyTOTP(ctx, "u1", code); !errors.Is(err, authkit.ErrInvalidCode) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[authkit.MetricTOTPReplay]; got != 1 {
		t.Fatalf("expected one replay metric, got %d", got)
	}

	h.clock.Advance(30 * time.Second)
	if err := h.engine.VerifyTOTP(ctx, "u1", h.code(t, secret)); err != nil {
		t.Fatalf("verify next step: %v", err)
	}
}

func TestActivationCodeCannotBeReplayed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	url, _ := h.engine.SetupTOTP(ctx, "u1", "alice", "Svc")
	code := h.code(t, secretFromURL(t, url))
	if err := h.engine.ActivateTOTP(ctx, "u1", code); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := h.engine.VerifyTOTP(ctx, "u1", code); !errors.Is(err, authkit.ErrInvalidCode) {
		t.Fatalf("expected activation code to be spent, got %v", err)
	}
}

func TestRecoveryCodeRedeemsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	set, err := h.engine.GenerateRecoveryCodes(ctx, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(set.Codes) != 8 || len(set.Masked) != 8 {
		t.Fatalf("expected 8 codes, got %d/%d", len(set.Codes), len(set.Masked))
	}
	for i, c := range set.Codes {
		if len(c) != 11 || c[5] != '-' {
			t.Fatalf("unexpected code format %q", c)
		}
		if !strings.Contains(set.Masked[i], "****") {
			t.Fatalf("unexpected masked form %q", set.Masked[i])
		}
	}

	if err := h.engine.VerifyRecoveryCode(ctx, "u1", set.Codes[0]); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if err := h.engine.VerifyRecoveryCode(ctx, "u1", set.Codes[0]); !errors.Is(err, authkit.ErrInvalidRecoveryCode) {
		t.Fatalf("expected second redemption to fail, got %v", err)
	}
	for _, c := range set.Codes[1:] {
		// lower case without the dash is accepted
		input := strings.ToLower(strings.ReplaceAll(c, "-", ""))
		if err := h.engine.VerifyRecoveryCode(ctx, "u1", input); err != nil {
			t.Fatalf("redeem %q: %v", c, err)
		}
	}
}

func TestRecoveryCodeConcurrentRedemption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	set, err := h.engine.GenerateRecoveryCodes(ctx, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.engine.VerifyRecoveryCode(ctx, "u1", set.Codes[3]); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one redemption, got %d", wins)
	}
}

func TestRegenerationInvalidatesOldCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old, _ := h.engine.GenerateRecoveryCodes(ctx, "u1")
	if _, err := h.engine.GenerateRecoveryCodes(ctx, "u1"); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if err := h.engine.VerifyRecoveryCode(ctx, "u1", old.Codes[0]); !errors.Is(err, authkit.ErrInvalidRecoveryCode) {
		t.Fatalf("expected old code to be gone, got %v", err)
	}
}

func TestListAndRevokeFactors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enrollTOTP(t)

	factors, err := h.engine.ListFactors(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(factors) != 1 || factors[0].Status != authkit.FactorActive {
		t.Fatalf("unexpected factors %+v", factors)
	}
	if factors[0].Secret != "" {
		t.Fatal("listed factors must not expose secrets")
	}

	if err := h.engine.RevokeFactor(ctx, "someone-else", factors[0].ID); !errors.Is(err, authkit.ErrFactorNotFound) {
		t.Fatalf("expected ErrFactorNotFound for foreign factor, got %v", err)
	}
	if err := h.engine.RevokeFactor(ctx, "u1", factors[0].ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if needs, _ := h.engine.NeedsMFA(ctx, "u1"); needs {
		t.Fatal("revoked factor must not gate login")
	}
}
