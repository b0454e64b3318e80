package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("operator", "staff", "herohours", "secret", time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, "secret", "herohours")
	require.NoError(t, err)
	require.Equal(t, "operator", claims.Subject)
	require.Equal(t, "staff", claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("operator", "staff", "herohours", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-secret", "herohours")
	require.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue("operator", "staff", "someone-else", "secret", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "herohours")
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("operator", "staff", "herohours", "secret", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "herohours")
	require.Error(t, err)
}

func TestCheckCredentials(t *testing.T) {
	require.True(t, CheckCredentials("op", "pw", "op", "pw"))
	require.False(t, CheckCredentials("op", "wrong", "op", "pw"))
	require.False(t, CheckCredentials("other", "pw", "op", "pw"))
	// Empty configured password disables login, even for an empty submission.
	require.False(t, CheckCredentials("op", "", "op", ""))
}
