package retry

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Kind identifies the failure category assigned by Classify.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindRateLimit    Kind = "rate_limit"
	KindQuoteExpired Kind = "quote_expired"
	KindRevert       Kind = "revert"
	KindUnknown      Kind = "unknown"
)

// ClassifiedError carries the classification of an arbitrary failure.
// It wraps the original error so callers can still unwrap it.
type ClassifiedError struct {
	Kind      Kind
	Retryable bool
	Message   string
	cause     error
}

func (e *ClassifiedError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Substring tables used by Classify. Matching is case-insensitive and the
// tables are checked in order: rate limit, quote expiry, revert, timeout,
// network. Anything unmatched is unknown and not retryable.
var (
	rateLimitTerms = []string{"rate limit", "too many requests", "429"}

	// ERC-4337 error codes that indicate the operation itself is invalid.
	// These must never be blindly resubmitted.
	revertTerms = []string{
		"revert", "reverted", "insufficient",
		"aa13", "aa21", "aa23", "aa24", "aa31", "aa33", "aa40", "aa41", "aa51",
		"caveat violated", "delegation not found",
	}

	timeoutTerms = []string{"timeout", "timed out", "deadline exceeded"}

	networkTerms = []string{
		"connection refused", "connection reset", "no such host",
		"network is unreachable", "broken pipe", "eof",
		"bad gateway", "service unavailable", "502", "503", "504",
	}
)

// Classify maps an arbitrary failure to a ClassifiedError. Transient
// conditions (network, timeout, rate limit, quote expiry) are retryable;
// reverts and anything unrecognized are not. An unrecognized failure is
// never assumed safe to resubmit.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	classified := func(kind Kind, retryable bool) *ClassifiedError {
		return &ClassifiedError{Kind: kind, Retryable: retryable, Message: msg, cause: err}
	}

	if containsAny(lower, rateLimitTerms) {
		return classified(KindRateLimit, true)
	}
	if strings.Contains(lower, "quote") && (strings.Contains(lower, "expired") || strings.Contains(lower, "stale")) {
		return classified(KindQuoteExpired, true)
	}
	if containsAny(lower, revertTerms) {
		return classified(KindRevert, false)
	}
	if containsAny(lower, timeoutTerms) {
		return classified(KindTimeout, true)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classified(KindTimeout, true)
	}
	if containsAny(lower, networkTerms) {
		return classified(KindNetwork, true)
	}

	return classified(KindUnknown, false)
}

// Permanent wraps an error so that Classify treats it as a non-retryable
// revert regardless of its message. Used for validation failures that
// signal a construction bug or scope escape.
func Permanent(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindRevert, Retryable: false, Message: err.Error(), cause: err}
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

var (
	urlPattern = regexp.MustCompile(`https?://[^\s"']+`)
	hexPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40,}`)
)

// Sanitize strips URLs and long hex blobs from an error message so it can
// be surfaced outside the engine without leaking endpoints or payloads.
func Sanitize(msg string) string {
	msg = urlPattern.ReplaceAllString(msg, "[url]")
	msg = hexPattern.ReplaceAllString(msg, "[hex]")
	return msg
}
