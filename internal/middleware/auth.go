package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	apiKeyHeader    = "X-API-Key"
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
	maxTimeSkew     = 60 // seconds
	maxBodyBytes    = 1 << 20
)

// AuthMiddleware provides HMAC-based authentication.
type AuthMiddleware struct {
	apiKey    string
	apiSecret string
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(apiKey, apiSecret string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		logger:    logger,
		now:       time.Now,
	}
}

// Signature returns hex(HMAC-SHA256(secret, timestamp+body)).
func Signature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	m.logger.Warn("request rejected",
		zap.String("path", r.URL.Path),
		zap.String("remote", r.RemoteAddr),
		zap.String("reason", reason),
	)
	http.Error(w, reason, status)
}

// Configured reports whether both credentials are set. An unconfigured
// middleware rejects every request.
func (m *AuthMiddleware) Configured() bool {
	return m.apiKey != "" && m.apiSecret != ""
}

// Wrap wraps an http.Handler with authentication.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Configured() {
			m.reject(w, r, http.StatusUnauthorized, "API credentials not configured")
			return
		}

		// 1. Check API Key
		requestAPIKey := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(requestAPIKey), []byte(m.apiKey)) != 1 {
			m.reject(w, r, http.StatusUnauthorized, "Invalid API Key")
			return
		}

		// 2. Check Timestamp
		timestampStr := r.Header.Get(timestampHeader)
		if timestampStr == "" {
			m.reject(w, r, http.StatusUnauthorized, "Missing timestamp header")
			return
		}
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			m.reject(w, r, http.StatusUnauthorized, "Invalid timestamp format")
			return
		}
		skew := m.now().Unix() - timestamp
		if skew > maxTimeSkew || skew < -maxTimeSkew {
			m.reject(w, r, http.StatusUnauthorized, "Timestamp expired")
			return
		}

		// 3. Check Signature
		requestSignature := r.Header.Get(signatureHeader)
		if requestSignature == "" {
			m.reject(w, r, http.StatusUnauthorized, "Missing signature header")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusInternalServerError)
			return
		}
		// Restore the body so the next handler can read it
		r.Body = io.NopCloser(bytes.NewReader(body))

		expectedSignature := Signature(m.apiSecret, timestampStr, body)
		if !hmac.Equal([]byte(requestSignature), []byte(expectedSignature)) {
			m.reject(w, r, http.StatusUnauthorized, "Invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}
