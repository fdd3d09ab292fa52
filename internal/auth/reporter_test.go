package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterTokenRoundtrip(t *testing.T) {
	mgr := NewReporterAuthManager("reporter-secret")

	token, err := mgr.GenerateReporterToken("detector-1", []string{ScopeIncidentsReport, ScopeDetectorStream}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	parsed, err := mgr.ValidateReporterToken(token)
	require.NoError(t, err)
	assert.Equal(t, "detector-1", parsed.Sub)
	assert.True(t, parsed.HasScope(ScopeIncidentsReport))
	assert.False(t, parsed.HasScope(ScopeMobilePair))
}

func TestReporterTokenInvalidSignature(t *testing.T) {
	mgr1 := NewReporterAuthManager("secret-1")
	mgr2 := NewReporterAuthManager("secret-2")

	token, err := mgr1.GenerateReporterToken("watcher", []string{ScopeMobilePair}, 0)
	require.NoError(t, err)

	_, err = mgr2.ValidateReporterToken(token)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature")
}

func TestReporterTokenExpiry(t *testing.T) {
	mgr := NewReporterAuthManager("secret")
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return now }

	token, err := mgr.GenerateReporterToken("detector", []string{ScopeIncidentsReport}, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = mgr.ValidateReporterToken(token)
	assert.ErrorContains(t, err, "expired")
}

func TestReporterTokenRejectsBadInput(t *testing.T) {
	mgr := NewReporterAuthManager("secret")

	_, err := mgr.GenerateReporterToken("", []string{ScopeIncidentsReport}, time.Hour)
	assert.Error(t, err)
	_, err = mgr.GenerateReporterToken("d", []string{"incidents:delete"}, time.Hour)
	assert.Error(t, err)

	for _, bad := range []string{"", "no-dot", "a.b.c", "payload.!!!"} {
		_, err := mgr.ValidateReporterToken(bad)
		assert.Error(t, err, bad)
	}
}
