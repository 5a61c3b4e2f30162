package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/crypto"
)

// Well-known development key, never used outside tests.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedRequest(t *testing.T, signer *crypto.Signer, method, path string, body []byte, ts int64) *http.Request {
	t.Helper()

	sig, err := signer.SignMessage(crypto.AdminMessage(method, path, ts, body))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	return req
}

func TestOperatorAuthRecoversCaller(t *testing.T) {
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	var gotCaller common.Address
	var gotBody []byte
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok {
			t.Error("caller missing from context")
		}
		gotCaller = caller
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	body := []byte(`{"paused":true}`)
	req := signedRequest(t, signer, http.MethodPost, "/api/admin/pause", body, time.Now().Unix())
	rec := httptest.NewRecorder()
	OperatorAuth(discardLogger())(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotCaller != signer.Address() {
		t.Errorf("caller = %s, want %s", gotCaller.Hex(), signer.Address().Hex())
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body not restored for handler: %q", gotBody)
	}
}

func TestOperatorAuthRejectsMissingHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil)
	rec := httptest.NewRecorder()
	OperatorAuth(discardLogger())(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOperatorAuthRejectsStaleTimestamp(t *testing.T) {
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	})

	stale := time.Now().Add(-10 * time.Minute).Unix()
	req := signedRequest(t, signer, http.MethodPost, "/api/admin/pause", nil, stale)
	rec := httptest.NewRecorder()
	OperatorAuth(discardLogger())(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOperatorAuthRejectsTamperedBody(t *testing.T) {
	signer, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	ts := time.Now().Unix()
	sig, err := signer.SignMessage(crypto.AdminMessage(http.MethodPost, "/api/admin/pause", ts, []byte(`{"paused":true}`)))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var calledWith common.Address
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calledWith, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	// Signature covers a different body than the one sent.
	req := httptest.NewRequest(http.MethodPost, "/api/admin/pause", bytes.NewReader([]byte(`{"paused":false}`)))
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	rec := httptest.NewRecorder()
	OperatorAuth(discardLogger())(inner).ServeHTTP(rec, req)

	// Recovery succeeds but yields a different address than the real
	// signer, so the engine's operator check rejects the call. The
	// middleware only guarantees the caller cannot impersonate the
	// operator.
	if rec.Code == http.StatusOK && calledWith == signer.Address() {
		t.Error("tampered body recovered the operator address")
	}
}

func TestAuthAPIKey(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := Auth("secret-key")(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("x-api-key: status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}
}
