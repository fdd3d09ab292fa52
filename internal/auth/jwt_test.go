package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 8*time.Hour, 6*time.Hour)
}

func TestGenerateAndValidateProctorToken(t *testing.T) {
	mgr := newTestJWTManager()
	proctorID := uuid.New()

	token, err := mgr.GenerateToken(RealmProctor, proctorID, "proctor@example.edu", RoleProctor, "")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateTokenForRealm(token, RealmProctor)
	require.NoError(t, err)
	assert.Equal(t, proctorID.String(), claims.Subject)
	assert.Equal(t, RealmProctor, claims.Realm)
	assert.Equal(t, RoleProctor, claims.Role)
	assert.Equal(t, "proctor@example.edu", claims.Email)
}

func TestGenerateAndValidateStudentToken(t *testing.T) {
	mgr := newTestJWTManager()
	studentID, sessionID := uuid.New(), uuid.New()

	token, err := mgr.GenerateToken(RealmStudent, studentID, "ada@example.edu", "", sessionID.String())
	require.NoError(t, err)

	claims, err := mgr.ValidateTokenForRealm(token, RealmStudent)
	require.NoError(t, err)
	assert.Equal(t, RealmStudent, claims.Realm)
	assert.Equal(t, sessionID.String(), claims.SessionID)
}

func TestUnknownRealmRejected(t *testing.T) {
	_, err := newTestJWTManager().GenerateToken(Realm("affiliate"), uuid.New(), "", "", "")
	assert.Error(t, err)
}

func TestRealmMismatchRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(RealmStudent, uuid.New(), "", "", "")
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(token, RealmProctor)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expected realm proctor")
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", time.Hour, time.Hour)
	mgr2 := NewJWTManager("secret-2", time.Hour, time.Hour)

	token, err := mgr1.GenerateToken(RealmProctor, uuid.New(), "", RoleAdmin, "")
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", -time.Minute, -time.Minute)

	token, err := mgr.GenerateToken(RealmStudent, uuid.New(), "", "", "")
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	assert.True(t, ValidRole(RoleViewer))
	assert.False(t, ValidRole("superadmin"))
	assert.NotContains(t, WriteRoles(), RoleViewer)
}
