package auth

import (
	"testing"
	"time"

	"github.com/lshigami/Pangolin/config"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Minute
	cfg.Media.Endpoint = "ws://gateway.test/session"
	return cfg
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer, err := NewCredentialIssuer(testConfig())
	require.NoError(t, err)

	credential, err := issuer.Issue("s1", "a1")
	require.NoError(t, err)
	require.NotEmpty(t, credential.Token)
	require.Equal(t, "ws://gateway.test/session", credential.Endpoint)
	require.WithinDuration(t, time.Now().Add(time.Minute), credential.ExpiresAt, 5*time.Second)

	studentKey, attemptID, err := VerifyCredential(testConfig(), credential.Token)
	require.NoError(t, err)
	require.Equal(t, "s1", studentKey)
	require.Equal(t, "a1", attemptID)
}

func TestIssue_RequiresIdentity(t *testing.T) {
	issuer, err := NewCredentialIssuer(testConfig())
	require.NoError(t, err)

	_, err = issuer.Issue("", "a1")
	require.Error(t, err)
	_, err = issuer.Issue("s1", "")
	require.Error(t, err)
}

func TestNewCredentialIssuer_RequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.TokenSecret = ""
	_, err := NewCredentialIssuer(cfg)
	require.Error(t, err)
}

func TestVerifyCredential_RejectsWrongSecret(t *testing.T) {
	issuer, err := NewCredentialIssuer(testConfig())
	require.NoError(t, err)

	credential, err := issuer.Issue("s1", "a1")
	require.NoError(t, err)

	other := testConfig()
	other.Auth.TokenSecret = "different-secret"
	_, _, err = VerifyCredential(other, credential.Token)
	require.Error(t, err)
}

func TestVerifyCredential_RejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.TokenTTL = time.Nanosecond
	issuer, err := NewCredentialIssuer(cfg)
	require.NoError(t, err)

	credential, err := issuer.Issue("s1", "a1")
	require.NoError(t, err)

	// exp claims are second-granular, so wait past the boundary.
	time.Sleep(1100 * time.Millisecond)
	_, _, err = VerifyCredential(cfg, credential.Token)
	require.Error(t, err)
}
