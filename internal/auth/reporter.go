package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reporter scopes.
const (
	ScopeIncidentsReport = "incidents:report"
	ScopeMobilePair      = "mobile:pair"
	ScopeDetectorStream  = "detector:stream"
)

// DefaultReporterTTL bounds a reporter token to one exam day.
const DefaultReporterTTL = 24 * time.Hour

// AllScopes returns every reporter scope.
func AllScopes() []string {
	return []string{ScopeIncidentsReport, ScopeMobilePair, ScopeDetectorStream}
}

// ReporterToken is the payload of a reporter credential held by a
// detector worker or mobile watcher.
type ReporterToken struct {
	Sub    string   `json:"sub"`
	Scopes []string `json:"scopes"`
	Exp    int64    `json:"exp"`
	Iat    int64    `json:"iat"`
	Jti    string   `json:"jti"`
}

// HasScope reports whether the token grants scope.
func (t *ReporterToken) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// ReporterAuthManager handles HMAC-SHA256 scoped tokens for reporters.
type ReporterAuthManager struct {
	secret []byte
	now    func() time.Time
}

// NewReporterAuthManager creates a reporter auth manager.
func NewReporterAuthManager(secret string) *ReporterAuthManager {
	return &ReporterAuthManager{secret: []byte(secret), now: time.Now}
}

// GenerateReporterToken creates an HMAC-SHA256 scoped token.
// Format: base64(payload).base64(signature)
func (m *ReporterAuthManager) GenerateReporterToken(reporterID string, scopes []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(reporterID) == "" {
		return "", fmt.Errorf("reporter id is required")
	}
	for _, s := range scopes {
		if !slices.Contains(AllScopes(), s) {
			return "", fmt.Errorf("unknown scope: %s", s)
		}
	}
	if ttl <= 0 {
		ttl = DefaultReporterTTL
	}
	now := m.now()

	token := ReporterToken{
		Sub:    reporterID,
		Scopes: scopes,
		Exp:    now.Add(ttl).Unix(),
		Iat:    now.Unix(),
		Jti:    uuid.New().String(),
	}

	payloadJSON, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("marshal reporter token: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	sigB64 := base64.RawURLEncoding.EncodeToString(m.sign(payloadB64))

	return payloadB64 + "." + sigB64, nil
}

// ValidateReporterToken verifies and decodes a reporter token.
func (m *ReporterAuthManager) ValidateReporterToken(tokenString string) (*ReporterToken, error) {
	payloadB64, sigB64, ok := strings.Cut(tokenString, ".")
	if !ok || strings.Contains(sigB64, ".") {
		return nil, fmt.Errorf("invalid reporter token format")
	}

	expectedSig := m.sign(payloadB64)
	actualSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if !hmac.Equal(expectedSig, actualSig) {
		return nil, fmt.Errorf("invalid signature")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var token ReporterToken
	if err := json.Unmarshal(payloadJSON, &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}

	if m.now().Unix() > token.Exp {
		return nil, fmt.Errorf("token expired")
	}

	return &token, nil
}

func (m *ReporterAuthManager) sign(data string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
