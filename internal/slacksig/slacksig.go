// Package slacksig provides HTTP middleware verifying Slack's v0
// shared-secret request signatures. Requests failing verification are
// rejected before any body parsing happens downstream.
package slacksig

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	headerSignature = "X-Slack-Signature"
	headerTimestamp = "X-Slack-Request-Timestamp"

	// maxSkew rejects replayed requests with stale timestamps.
	maxSkew = 5 * time.Minute

	// maxBody caps how much we buffer for signing; Slack interactive
	// payloads are far smaller.
	maxBody = 1 << 20
)

// Verify returns middleware that validates the v0 HMAC-SHA256 signature
// over "v0:<timestamp>:<body>" using the shared signing secret.
// Comparison uses constant-time equality to prevent timing side-channels.
// The body is restored for downstream handlers on success.
func Verify(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig := r.Header.Get(headerSignature)
			ts := r.Header.Get(headerTimestamp)
			if sig == "" || ts == "" {
				http.Error(w, `{"error":"missing signature headers"}`, http.StatusUnauthorized)
				return
			}

			sent, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				http.Error(w, `{"error":"malformed timestamp"}`, http.StatusUnauthorized)
				return
			}
			if d := time.Since(time.Unix(sent, 0)); d > maxSkew || d < -maxSkew {
				http.Error(w, `{"error":"stale request"}`, http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
			if err != nil {
				http.Error(w, `{"error":"unreadable body"}`, http.StatusBadRequest)
				return
			}

			if !hmac.Equal([]byte(sig), []byte(Signature(key, ts, body))) {
				http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// Signature computes the v0 signature for a timestamp and body.
func Signature(key []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
