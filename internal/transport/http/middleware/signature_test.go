package middleware

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sigBaseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func signedRequest(t *testing.T, priv ed25519.PrivateKey, ts, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/interactions", strings.NewReader(body))
	sig := ed25519.Sign(priv, []byte(ts+body))
	req.Header.Set(headerSignature, hex.EncodeToString(sig))
	req.Header.Set(headerTimestamp, ts)
	return req
}

func verifyChain(t *testing.T, pub ed25519.PublicKey) (http.Handler, *bool) {
	t.Helper()
	reached := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	mw := VerifySignature(pub, func() time.Time { return sigBaseTime })
	return mw(inner), &reached
}

func TestVerifySignature_ValidRequestPasses(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, reached := verifyChain(t, pub)

	ts := strconv.FormatInt(sigBaseTime.Unix(), 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, ts, `{"type":1}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *reached)
}

func TestVerifySignature_BodyStaysReadableDownstream(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var got string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	})
	h := VerifySignature(pub, func() time.Time { return sigBaseTime })(inner)

	ts := strconv.FormatInt(sigBaseTime.Unix(), 10)
	h.ServeHTTP(httptest.NewRecorder(), signedRequest(t, priv, ts, `{"type":1}`))

	assert.Equal(t, `{"type":1}`, got)
}

func TestVerifySignature_WrongKeyRejected(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, reached := verifyChain(t, pub)

	ts := strconv.FormatInt(sigBaseTime.Unix(), 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, otherPriv, ts, `{"type":1}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *reached)
}

func TestVerifySignature_TamperedBodyRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, reached := verifyChain(t, pub)

	ts := strconv.FormatInt(sigBaseTime.Unix(), 10)
	req := signedRequest(t, priv, ts, `{"type":1}`)
	req.Body = io.NopCloser(strings.NewReader(`{"type":2}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *reached)
}

func TestVerifySignature_StaleTimestampRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, reached := verifyChain(t, pub)

	// Signature itself is valid for this timestamp; only the age trips.
	ts := strconv.FormatInt(sigBaseTime.Add(-301*time.Second).Unix(), 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, ts, `{"type":1}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *reached)
}

func TestVerifySignature_FutureTimestampRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, reached := verifyChain(t, pub)

	ts := strconv.FormatInt(sigBaseTime.Add(301*time.Second).Unix(), 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, ts, `{"type":1}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, *reached)
}

func TestVerifySignature_EdgeOfWindowAccepted(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, _ := verifyChain(t, pub)

	ts := strconv.FormatInt(sigBaseTime.Add(-300*time.Second).Unix(), 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, ts, `{"type":1}`))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignature_MissingOrMalformedHeaders(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h, reached := verifyChain(t, pub)

	tests := []struct {
		name string
		sig  string
		ts   string
	}{
		{"no headers", "", ""},
		{"missing timestamp", strings.Repeat("ab", 64), ""},
		{"missing signature", "", strconv.FormatInt(sigBaseTime.Unix(), 10)},
		{"non-hex signature", "zz" + strings.Repeat("ab", 63), strconv.FormatInt(sigBaseTime.Unix(), 10)},
		{"truncated signature", "abcd", strconv.FormatInt(sigBaseTime.Unix(), 10)},
		{"non-numeric timestamp", strings.Repeat("ab", 64), "yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*reached = false
			req := httptest.NewRequest(http.MethodPost, "/v1/interactions", strings.NewReader(`{"type":1}`))
			if tt.sig != "" {
				req.Header.Set(headerSignature, tt.sig)
			}
			if tt.ts != "" {
				req.Header.Set(headerTimestamp, tt.ts)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, *reached)
		})
	}
}
