package crypto

import (
	"strings"
	"testing"
	"time"
)

// Well-known test key (hardhat account #0); never used outside tests.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSignAndRecover(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	msg := AdminMessage("POST", "/v1/events/7/resolve", 1700000000, []byte(`{"winner":"0xabc"}`))

	sig, err := signer.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Fatalf("SignMessage() = %q, want 0x-prefixed 65-byte hex signature", sig)
	}

	got, err := RecoverSigner(msg, sig)
	if err != nil {
		t.Fatalf("RecoverSigner() error = %v", err)
	}
	if got != signer.Address() {
		t.Errorf("RecoverSigner() = %s, want %s", got.Hex(), signer.Address().Hex())
	}

	// Tampered message must recover a different address.
	other, err := RecoverSigner(append(msg, 'x'), sig)
	if err == nil && other == signer.Address() {
		t.Error("RecoverSigner() on tampered message recovered the signer address")
	}
}

func TestRecoverSignerRejectsBadSignatures(t *testing.T) {
	msg := []byte("hello")

	tests := []struct {
		name string
		sig  string
	}{
		{"not hex", "0xzz"},
		{"too short", "0xdeadbeef"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RecoverSigner(msg, tt.sig); err == nil {
				t.Errorf("RecoverSigner(%q) error = nil, want error", tt.sig)
			}
		})
	}
}

func TestNewSignerInvalidKey(t *testing.T) {
	if _, err := NewSigner("not-a-key"); err == nil {
		t.Error("NewSigner() error = nil, want error")
	}
}

func TestEncryptDecryptKeyRoundtrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey() error = %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey() error = %v", err)
	}
	if got != testKeyHex {
		t.Errorf("DecryptKey() = %q, want %q", got, testKeyHex)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("DecryptKey() with wrong password error = nil, want error")
	}
}

func TestWebhookAuthVerify(t *testing.T) {
	auth := &WebhookAuth{Secret: "s3cret"}
	body := []byte(`{"kind":"event_resolved","event_id":3}`)

	now := time.Now().Unix()
	headers := auth.HeadersAt(body, now)

	if err := auth.Verify(body, headers["X-Momentum-Timestamp"], headers["X-Momentum-Signature"], time.Minute); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if err := auth.Verify([]byte("tampered"), headers["X-Momentum-Timestamp"], headers["X-Momentum-Signature"], time.Minute); err == nil {
		t.Error("Verify() on tampered body error = nil, want error")
	}

	stale := auth.HeadersAt(body, now-3600)
	if err := auth.Verify(body, stale["X-Momentum-Timestamp"], stale["X-Momentum-Signature"], time.Minute); err == nil {
		t.Error("Verify() on stale timestamp error = nil, want error")
	}
}
