package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAuthMiddleware(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewAuthMiddleware("key", "secret", zap.NewNop())
	m.now = func() time.Time { return now }

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	h := m.Wrap(echo)

	ts := strconv.FormatInt(now.Unix(), 10)
	body := `{"quantity":2}`

	tests := []struct {
		name   string
		key    string
		ts     string
		sig    string
		status int
	}{
		{"valid", "key", ts, Signature("secret", ts, []byte(body)), http.StatusOK},
		{"wrong key", "nope", ts, Signature("secret", ts, []byte(body)), http.StatusUnauthorized},
		{"missing timestamp", "key", "", Signature("secret", "", []byte(body)), http.StatusUnauthorized},
		{"bad timestamp", "key", "soon", Signature("secret", "soon", []byte(body)), http.StatusUnauthorized},
		{"expired", "key", "1699999000", Signature("secret", "1699999000", []byte(body)), http.StatusUnauthorized},
		{"future", "key", "1700001000", Signature("secret", "1700001000", []byte(body)), http.StatusUnauthorized},
		{"missing signature", "key", ts, "", http.StatusUnauthorized},
		{"wrong secret", "key", ts, Signature("other", ts, []byte(body)), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tickets/buy", strings.NewReader(body))
			req.Header.Set(apiKeyHeader, tt.key)
			if tt.ts != "" {
				req.Header.Set(timestampHeader, tt.ts)
			}
			if tt.sig != "" {
				req.Header.Set(signatureHeader, tt.sig)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				// the body is still readable downstream
				assert.Equal(t, body, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareWithoutCredentialsRejectsEverything(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := `{"quantity":1}`

	tests := []struct {
		name   string
		key    string
		secret string
	}{
		{"both empty", "", ""},
		{"empty key", "", "secret"},
		{"empty secret", "key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(tt.key, tt.secret, zap.NewNop())
			m.now = func() time.Time { return now }
			assert.False(t, m.Configured())

			called := false
			h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			// a request that would match the configured credentials exactly
			req := httptest.NewRequest(http.MethodPost, "/tickets/buy", strings.NewReader(body))
			req.Header.Set(apiKeyHeader, tt.key)
			req.Header.Set(timestampHeader, ts)
			req.Header.Set(signatureHeader, Signature(tt.secret, ts, []byte(body)))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}

	assert.True(t, NewAuthMiddleware("key", "secret", zap.NewNop()).Configured())
}
