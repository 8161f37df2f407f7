package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Header names carrying the HMAC signature.
const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
)

// maxFutureSkew bounds how far ahead of the local clock a timestamp may be.
const maxFutureSkew = time.Minute

// Verifier authenticates an inbound webhook request. body is the raw request body; the request
// body itself has already been consumed.
type Verifier interface {
	Verify(r *http.Request, body []byte) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(r *http.Request, body []byte) error

func (f VerifierFunc) Verify(r *http.Request, body []byte) error { return f(r, body) }

// SignatureHeaders are the values a sender attaches to a signed request.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
}

// Apply sets the signature headers on h.
func (s SignatureHeaders) Apply(h http.Header) {
	h.Set(SignatureHeader, s.Signature)
	h.Set(TimestampHeader, strconv.FormatInt(s.Timestamp, 10))
}

// Sign computes HMAC-SHA256(secret, "<timestamp>.<payload>") as lowercase hex.
func Sign(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SignPayload signs payload at time at.
func SignPayload(secret string, payload []byte, at time.Time) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	ts := at.Unix()
	return SignatureHeaders{Signature: Sign(secret, ts, payload), Timestamp: ts}, nil
}

// HMACVerifier checks the X-Webhook-Signature and X-Webhook-Timestamp headers.
type HMACVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// HMACOption configures an HMACVerifier.
type HMACOption func(*HMACVerifier)

// WithTolerance sets the maximum age of a signature. Zero disables the age check.
func WithTolerance(d time.Duration) HMACOption {
	return func(v *HMACVerifier) {
		if d >= 0 {
			v.tolerance = d
		}
	}
}

// WithVerifierClock overrides the time source.
func WithVerifierClock(now func() time.Time) HMACOption {
	return func(v *HMACVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewHMACVerifier creates an HMACVerifier with a five-minute tolerance.
func NewHMACVerifier(secret string, opts ...HMACOption) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	v := &HMACVerifier{secret: secret, tolerance: 5 * time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify implements Verifier.
func (v *HMACVerifier) Verify(r *http.Request, body []byte) error {
	sig := r.Header.Get(SignatureHeader)
	raw := r.Header.Get(TimestampHeader)
	if sig == "" || raw == "" {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp format", ErrInvalidSignature)
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if v.tolerance > 0 && age > v.tolerance {
		return fmt.Errorf("%w: signature is %s old", ErrTimestampOutOfRange, age.Truncate(time.Second))
	}
	if age < -maxFutureSkew {
		return fmt.Errorf("%w: signature timestamp is in the future", ErrTimestampOutOfRange)
	}

	expected := Sign(v.secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}
