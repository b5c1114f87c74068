// Package signing issues and checks HMAC signed, expiring download links for
// processed submissions.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrBadSignature is returned when a link was not issued by this signer
	// or its parameters were altered.
	ErrBadSignature = errors.New("invalid signature")
	// ErrExpired is returned for a genuine link past its expiry.
	ErrExpired = errors.New("link expired")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for a submission id and expiry.
func (s *Signer) Sign(submissionID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", submissionID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Link returns query parameters that authorize downloading submissionID for
// ttl, along with the expiry they encode.
func (s *Signer) Link(submissionID string, ttl time.Duration) (url.Values, time.Time) {
	expires := s.now().Add(ttl).Truncate(time.Second)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires.Unix(), 10))
	q.Set("signature", s.Sign(submissionID, expires.Unix()))
	return q, expires
}

// Verify checks the expires and signature parameters for submissionID.
func (s *Signer) Verify(submissionID, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	expected := s.Sign(submissionID, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrExpired
	}
	return nil
}
