package medialink

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "recibos/pkg/domain-errors"
)

func TestSignAndVerify(t *testing.T) {
	s, err := NewSigner("k3y", time.Minute, "https://recibos.example/")
	require.NoError(t, err)

	url, err := s.URL("03-2025/30111222.pdf", "30111222", "03/2025")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://recibos.example/media/"))
	require.True(t, strings.HasSuffix(url, ".pdf"))

	token := strings.TrimPrefix(url, "https://recibos.example/media/")
	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "03-2025/30111222.pdf", claims.Ref)
	assert.Equal(t, "03/2025", claims.Period)
}

func TestVerifyRejects(t *testing.T) {
	s, err := NewSigner("k3y", time.Minute, "")
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token, err := s.Sign("a.pdf", "a", "03/2025")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		defer func() { now = now.Add(-2 * time.Minute) }()
		_, err := s.Verify(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := NewSigner("other", time.Minute, "")
		other.now = s.now
		_, err := other.Verify(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Verify("not-a-token")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestNewSignerRequiresKey(t *testing.T) {
	_, err := NewSigner("", time.Minute, "")
	assert.Error(t, err)
}
