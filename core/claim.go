package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// Claim is an extracted, independently checkable factual assertion from a
// generated output. Fingerprint identifies the claim for caching and
// deduplication and is a pure function of the claim text.
type Claim struct {
	Text         string `json:"text"`
	ExampleIndex int    `json:"example_index"`
	RepeatIndex  int    `json:"repeat_index"`
	Fingerprint  string `json:"fingerprint"`
}

// NewClaim builds a claim and computes its fingerprint.
func NewClaim(text string, exampleIndex, repeatIndex int) Claim {
	return Claim{
		Text:         text,
		ExampleIndex: exampleIndex,
		RepeatIndex:  repeatIndex,
		Fingerprint:  Fingerprint(text),
	}
}

// CanonicalizeClaim normalizes claim text before hashing: lowercase,
// punctuation stripped, whitespace collapsed. Two claims that differ only in
// casing or punctuation share a fingerprint and therefore a verdict.
func CanonicalizeClaim(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Fingerprint hashes the canonicalized claim text. Identical text after
// normalization always yields an identical fingerprint.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(CanonicalizeClaim(text)))
	return hex.EncodeToString(sum[:])
}

// Verdict is the outcome of checking a claim against external knowledge.
type Verdict string

const (
	// VerdictSupported means evidence confirms the claim.
	VerdictSupported Verdict = "SUPPORTED"
	// VerdictRefuted means evidence contradicts the claim.
	VerdictRefuted Verdict = "REFUTED"
	// VerdictUnverifiable means no decisive evidence was found.
	VerdictUnverifiable Verdict = "UNVERIFIABLE"
)

// Valid reports whether the verdict is one of the known values.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictSupported, VerdictRefuted, VerdictUnverifiable:
		return true
	}
	return false
}

// VerificationVerdict is the cached outcome of verifying one claim
// fingerprint. TTL is measured from ComputedAt (first write); reads do not
// extend it.
type VerificationVerdict struct {
	Fingerprint string        `json:"fingerprint"`
	Verdict     Verdict       `json:"verdict"`
	Confidence  float64       `json:"confidence"`
	Sources     []string      `json:"sources,omitempty"`
	ComputedAt  time.Time     `json:"computed_at"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the verdict is stale at the given time. A zero
// TTL means the verdict never expires.
func (v *VerificationVerdict) Expired(now time.Time) bool {
	if v.TTL == 0 {
		return false
	}
	return now.After(v.ComputedAt.Add(v.TTL))
}

// Clone returns a deep copy of the verdict.
func (v *VerificationVerdict) Clone() *VerificationVerdict {
	if v == nil {
		return nil
	}
	c := *v
	c.Sources = append([]string(nil), v.Sources...)
	return &c
}
