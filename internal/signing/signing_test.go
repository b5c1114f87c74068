package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	sig := s.Sign("sub123", 1700000000)
	require.NotEmpty(t, sig)
	assert.Equal(t, sig, NewSigner([]byte("topsecret")).Sign("sub123", 1700000000))
	assert.NotEqual(t, sig, NewSigner([]byte("other")).Sign("sub123", 1700000000))
}

func TestLinkRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return now }

	q, expires := s.Link("sub123", 5*time.Minute)
	assert.Equal(t, now.Add(5*time.Minute), expires)
	require.NoError(t, s.Verify("sub123", q.Get("expires"), q.Get("signature")))

	assert.ErrorIs(t, s.Verify("wrong", q.Get("expires"), q.Get("signature")), ErrBadSignature)
	assert.ErrorIs(t, s.Verify("sub123", "42", q.Get("signature")), ErrBadSignature)
	assert.ErrorIs(t, s.Verify("sub123", "not-a-number", q.Get("signature")), ErrBadSignature)

	now = now.Add(6 * time.Minute)
	assert.ErrorIs(t, s.Verify("sub123", q.Get("expires"), q.Get("signature")), ErrExpired)
}
