package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
)

var (
	// ErrEmptyCompletion is returned when a backend answers with no usable text.
	ErrEmptyCompletion = errors.New("provider returned empty completion")
	// ErrTransport marks failures below the HTTP layer (DNS, refused connections, TLS).
	ErrTransport = errors.New("provider transport failure")
)

var statusPattern = regexp.MustCompile(`\b(?:status(?: code)?|HTTP|API returned unexpected status code)[:\s]*([1-5][0-9]{2})\b`)

// Normalize maps a raw backend error onto an errdefs class so callers can
// decide whether to try the next candidate. Already-classified errors pass through.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	if isTransport(err, msg) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if code := statusCode(err); code != 0 {
		if class := classForStatus(code); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
	}

	switch {
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "quota", "credit balance", "insufficient_quota"):
		return fmt.Errorf("%w: %w", errdefs.ErrResourceExhausted, err)
	case containsAny(msg, "model not found", "model_not_found", "no such model", "does not exist", "not found"):
		return fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)
	case containsAny(msg, "invalid api key", "incorrect api key", "unauthorized", "authentication", "api key required"):
		return fmt.Errorf("%w: %w", errdefs.ErrUnauthenticated, err)
	case containsAny(msg, "forbidden", "permission denied", "access denied", "not authorized"):
		return fmt.Errorf("%w: %w", errdefs.ErrPermissionDenied, err)
	case containsAny(msg, "bad request", "invalid request", "invalid_request", "context length", "maximum context"):
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	case containsAny(msg, "overloaded", "internal server error", "service unavailable", "bad gateway", "gateway timeout"):
		return fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err)
	}

	// Unrecognised backend failures are treated as a model-level problem.
	return fmt.Errorf("%w: %w", errdefs.ErrUnknown, err)
}

// IsRetryable reports whether a normalized error should advance the cascade.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, context.Canceled) {
		return false
	}
	return errdefs.IsResourceExhausted(err) ||
		errdefs.IsNotFound(err) ||
		errdefs.IsInvalidArgument(err) ||
		errdefs.IsUnauthorized(err) ||
		errdefs.IsPermissionDenied(err) ||
		errdefs.IsUnavailable(err) ||
		errdefs.IsInternal(err) ||
		errdefs.IsUnknown(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errdefs.IsResourceExhausted(err) ||
		errdefs.IsNotFound(err) ||
		errdefs.IsInvalidArgument(err) ||
		errdefs.IsUnauthorized(err) ||
		errdefs.IsPermissionDenied(err) ||
		errdefs.IsUnavailable(err) ||
		errdefs.IsInternal(err) ||
		errdefs.IsUnknown(err)
}

func classForStatus(code int) error {
	switch {
	case code == 400 || code == 422:
		return errdefs.ErrInvalidArgument
	case code == 401:
		return errdefs.ErrUnauthenticated
	case code == 402 || code == 429:
		return errdefs.ErrResourceExhausted
	case code == 403:
		return errdefs.ErrPermissionDenied
	case code == 404:
		return errdefs.ErrNotFound
	case code == 408:
		return errdefs.ErrUnavailable
	case code >= 500:
		return errdefs.ErrUnavailable
	}
	return nil
}

func statusCode(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return code
}

func isTransport(err error, msg string) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return containsAny(msg, "connection refused", "no such host", "connection reset", "tls: ", "network is unreachable")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
