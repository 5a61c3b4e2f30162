package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/crypto"
)

// Headers carrying the operator signature on admin requests.
const (
	HeaderSignature = "X-Momentum-Signature"
	HeaderTimestamp = "X-Momentum-Timestamp"
)

// maxSignatureSkew bounds how stale a signed admin request may be. Replayed
// requests older than this are rejected regardless of signature validity.
const maxSignatureSkew = 5 * time.Minute

// maxAdminBody caps admin request bodies; signed payloads are small.
const maxAdminBody = 1 << 20

type callerKey struct{}

// CallerFrom returns the address recovered from the request signature, if
// the operator middleware ran on this request.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller injects a caller address into the context. Exposed for handler
// tests.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// OperatorAuth verifies an Ethereum personal-sign signature over the request
// method, path, timestamp, and body, and injects the recovered address into
// the request context. It does not check the recovered address against the
// current operator; the engine does that, so operator handover never leaves
// the middleware holding a stale address.
func OperatorAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "operator_auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sigHex := r.Header.Get(HeaderSignature)
			tsRaw := r.Header.Get(HeaderTimestamp)
			if sigHex == "" || tsRaw == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}

			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp")
				return
			}
			skew := time.Since(time.Unix(ts, 0))
			if skew < 0 {
				skew = -skew
			}
			if skew > maxSignatureSkew {
				writeUnauthorized(w, "signature expired")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBody))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			msg := crypto.AdminMessage(r.Method, r.URL.Path, ts, body)
			caller, err := crypto.RecoverSigner(msg, sigHex)
			if err != nil {
				log.Warn("signature recovery failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeUnauthorized(w, "invalid signature")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
