// Package webhook verifies provider-signed deliveries and deduplicates
// them. Signature verification runs over the raw, unparsed request body;
// JSON decoding happens downstream and never affects acceptance.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature covers every verification failure: missing header,
// undecodable signature, digest mismatch, or stale timestamp. Callers must
// never surface more detail than this to the sender.
var ErrBadSignature = errors.New("signature verification failed")

// sigEncoding is how a provider encodes its HMAC digest on the wire.
type sigEncoding int

const (
	encBase64 sigEncoding = iota
	encHex
)

// Provider describes one webhook source's signature scheme: which header
// carries the signature, how the digest is encoded, and whether a
// timestamp participates in the signed message.
type Provider struct {
	Name            string
	SignatureHeader string
	DeliveryHeader  string
	Encoding        sigEncoding
	Timestamped     bool
}

// providers is the verification strategy table. Dispatch is by provider
// name; there is no string branching inside the verifier itself.
var providers = map[string]Provider{
	"shopify": {
		Name:            "shopify",
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		DeliveryHeader:  "X-Shopify-Webhook-Id",
		Encoding:        encBase64,
	},
	"stripe": {
		Name:            "stripe",
		SignatureHeader: "Stripe-Signature",
		Encoding:        encHex,
		Timestamped:     true,
	},
	"printful": {
		Name:            "printful",
		SignatureHeader: "X-Printful-Signature",
		DeliveryHeader:  "X-Printful-Delivery-Id",
		Encoding:        encHex,
	},
}

// LookupProvider returns the strategy entry for a provider name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// Verifier checks delivery signatures for all known providers. It holds
// one shared secret per provider and the replay tolerance window for
// timestamped schemes.
type Verifier struct {
	secrets   map[string][]byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier. secrets maps provider name to its shared
// secret; tolerance bounds the accepted clock skew for timestamped
// signatures.
func NewVerifier(secrets map[string]string, tolerance time.Duration) *Verifier {
	m := make(map[string][]byte, len(secrets))
	for name, secret := range secrets {
		m[name] = []byte(secret)
	}
	return &Verifier{secrets: m, tolerance: tolerance, now: time.Now}
}

// Verify checks the signature header value against the raw body for the
// named provider. It returns ErrBadSignature on any failure; the error
// carries no digest, algorithm, or secret material.
func (v *Verifier) Verify(provider, signature string, rawBody []byte) error {
	p, ok := providers[provider]
	if !ok {
		return ErrBadSignature
	}
	secret, ok := v.secrets[provider]
	if !ok || len(secret) == 0 {
		return ErrBadSignature
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrBadSignature
	}

	if p.Timestamped {
		return v.verifyTimestamped(secret, signature, rawBody)
	}

	expected := computeHMAC(secret, rawBody)
	var got []byte
	var err error
	switch p.Encoding {
	case encBase64:
		got, err = base64.StdEncoding.DecodeString(signature)
	case encHex:
		got, err = hex.DecodeString(signature)
	}
	if err != nil || !hmac.Equal(expected, got) {
		return ErrBadSignature
	}
	return nil
}

// verifyTimestamped handles the structured "t=<unix>,v1=<hex>" scheme: the
// signed message is "<ts>." + body, and the timestamp must fall within the
// tolerance window.
func (v *Verifier) verifyTimestamped(secret []byte, signature string, rawBody []byte) error {
	ts, sigs := parseStructuredSignature(signature)
	if ts == "" || len(sigs) == 0 {
		return ErrBadSignature
	}
	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || tsUnix <= 0 {
		return ErrBadSignature
	}

	signed := make([]byte, 0, len(ts)+1+len(rawBody))
	signed = append(signed, ts...)
	signed = append(signed, '.')
	signed = append(signed, rawBody...)
	expected := computeHMAC(secret, signed)

	valid := false
	for _, sigHex := range sigs {
		got, err := hex.DecodeString(sigHex)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			valid = true
			break
		}
	}
	if !valid {
		return ErrBadSignature
	}

	if v.tolerance > 0 {
		skew := v.now().UTC().Sub(time.Unix(tsUnix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return ErrBadSignature
		}
	}
	return nil
}

// parseStructuredSignature splits "t=...,v1=...,v1=..." into the timestamp
// and the candidate signatures. Unknown keys are ignored.
func parseStructuredSignature(raw string) (string, []string) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "t":
			if ts == "" {
				ts = strings.TrimSpace(kv[1])
			}
		case "v1":
			if s := strings.TrimSpace(kv[1]); s != "" {
				sigs = append(sigs, s)
			}
		}
	}
	return ts, sigs
}

func computeHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// DeliveryID extracts a stable identifier for deduplication. Preference
// order: the provider's delivery header, the event id in the body, then a
// digest of the raw body. The body parse is best-effort; a malformed body
// still yields a usable identifier.
func DeliveryID(p Provider, headerValue string, rawBody []byte) string {
	if id := strings.TrimSpace(headerValue); id != "" {
		return id
	}
	var evt struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rawBody, &evt); err == nil {
		if id := strings.TrimSpace(evt.ID); id != "" {
			return id
		}
	}
	sum := sha256.Sum256(rawBody)
	return fmt.Sprintf("body-%s", hex.EncodeToString(sum[:16]))
}
