package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueVerify_Success(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens([]byte("super-secret"), fixedClock(now))

	tok, err := tokens.Issue("user-123", now.Add(time.Hour))
	require.NoError(t, err)

	userID, err := tokens.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user-123", userID)
}

func TestIssue_TokensDiffer(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens([]byte("s"), fixedClock(now))

	a, err := tokens.Issue("u1", now.Add(time.Hour))
	require.NoError(t, err)
	b, err := tokens.Issue("u1", now.Add(time.Hour))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, err := NewTokens([]byte("s"), fixedClock(now)).Issue("u1", now.Add(time.Minute))
	require.NoError(t, err)

	later := NewTokens([]byte("s"), fixedClock(now.Add(2*time.Minute)))
	_, err = later.Verify(tok)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Now()
	tok, err := NewTokens([]byte("right"), nil).Issue("u2", now.Add(time.Hour))
	require.NoError(t, err)

	_, err = NewTokens([]byte("wrong"), nil).Verify(tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewTokens([]byte("s"), nil).Verify("not-a-token")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
