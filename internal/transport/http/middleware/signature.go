package middleware

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	headerSignature = "X-Signature-Ed25519"
	headerTimestamp = "X-Signature-Timestamp"

	// maxTimestampSkew bounds how stale (or future-dated) a signed request
	// may be before it is rejected as a replay.
	maxTimestampSkew = 300 * time.Second

	// maxBodySize caps how much of the webhook body is read for
	// verification. Real interaction payloads are a few KB.
	maxBodySize = 1 << 20
)

// VerifySignature authenticates inbound webhook requests with the
// platform's detached ed25519 scheme: the signature covers timestamp+body.
// Anything that fails — missing headers, malformed hex, stale timestamp,
// bad signature — is rejected with the same generic 401 before the payload
// is parsed. A nil now defaults to time.Now.
func VerifySignature(publicKey ed25519.PublicKey, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sigHex := r.Header.Get(headerSignature)
			ts := r.Header.Get(headerTimestamp)
			if sigHex == "" || ts == "" {
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}

			sig, err := hex.DecodeString(sigHex)
			if err != nil || len(sig) != ed25519.SignatureSize {
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}

			tsUnix, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}
			if skew := now().Sub(time.Unix(tsUnix, 0)); skew > maxTimestampSkew || skew < -maxTimestampSkew {
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}
			r.Body.Close()

			if !ed25519.Verify(publicKey, append([]byte(ts), body...), sig) {
				writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
