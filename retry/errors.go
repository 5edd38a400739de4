package retry

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies a failure for retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindRateLimit
	KindServer
	KindClient
	KindNotFound
	KindValidation
	KindCircuitOpen
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindNetwork:     "network",
	KindTimeout:     "timeout",
	KindRateLimit:   "rate_limit",
	KindServer:      "server",
	KindClient:      "client",
	KindNotFound:    "not_found",
	KindValidation:  "validation",
	KindCircuitOpen: "circuit_open",
}

var kindCategories = map[Kind]goerrors.Category{
	KindNetwork:     goerrors.CategoryExternal.Extend("network"),
	KindTimeout:     goerrors.CategoryExternal.Extend("timeout"),
	KindRateLimit:   goerrors.CategoryRateLimit,
	KindServer:      goerrors.CategoryExternal.Extend("server"),
	KindClient:      goerrors.CategoryBadInput,
	KindNotFound:    goerrors.CategoryNotFound,
	KindValidation:  goerrors.CategoryValidation,
	KindCircuitOpen: goerrors.CategoryOperation.Extend("circuit_open"),
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Category returns the go-errors category that carries the kind.
func (k Kind) Category() goerrors.Category {
	if cat, ok := kindCategories[k]; ok {
		return cat
	}
	return goerrors.CategoryInternal
}

// Retryable reports whether failures of this kind are transient.
// Unknown failures are not retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimit, KindServer:
		return true
	}
	return false
}

// NewError creates an error tagged with kind.
func NewError(kind Kind, message string) *goerrors.Error {
	return goerrors.New(message, kind.Category()).
		WithTextCode(strings.ToUpper(kind.String()))
}

// Wrap tags err with kind. The original error stays reachable through errors.Is/As.
func Wrap(err error, kind Kind, message string) *goerrors.Error {
	if err == nil {
		return nil
	}
	e := NewError(kind, message)
	e.Source = err
	return e
}

// FromStatus creates an error for an HTTP status code returned by the remote store.
func FromStatus(status int, message string) *goerrors.Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return NewError(KindFromStatus(status), message).WithCode(status)
}

// KindFromStatus maps an HTTP status code to a Kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500 && status <= 599:
		return KindServer
	case status >= 400 && status <= 499:
		return KindClient
	}
	return KindUnknown
}

// KindOf classifies err. Structural tags win: a go-errors category set by NewError or
// Wrap, then an HTTP code, then context errors. Untagged errors fall back to matching
// the message against the transient failure keywords.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var tagged *goerrors.Error
	if errors.As(err, &tagged) {
		for kind, cat := range kindCategories {
			if tagged.Category == cat {
				return kind
			}
		}
		if tagged.Code != 0 {
			if kind := KindFromStatus(tagged.Code); kind != KindUnknown {
				return kind
			}
		}
	}

	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) && retryable.BaseError != nil {
		for kind, cat := range kindCategories {
			if retryable.BaseError.Category == cat {
				return kind
			}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindUnknown
	}

	return classifyMessage(err.Error())
}

// IsRetryable is the default retry predicate. A go-errors RetryableError decides for
// itself; everything else is retried only when its kind is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return KindOf(err).Retryable()
}

var (
	serverStatusPattern = regexp.MustCompile(`\b5\d\d\b`)
	clientStatusPattern = regexp.MustCompile(`\b4\d\d\b`)
	notFoundPattern     = regexp.MustCompile(`\b404\b`)
)

var messageKeywords = []struct {
	kind     Kind
	keywords []string
}{
	{KindRateLimit, []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "429"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNetwork, []string{"network", "connection", "econnreset", "econnrefused", "fetch failed", "socket hang up", "offline"}},
	{KindServer, []string{"internal server error", "bad gateway", "service unavailable"}},
}

func classifyMessage(message string) Kind {
	msg := strings.ToLower(message)

	for _, group := range messageKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(msg, keyword) {
				return group.kind
			}
		}
	}

	switch {
	case serverStatusPattern.MatchString(msg):
		return KindServer
	case notFoundPattern.MatchString(msg) || strings.Contains(msg, "not found"):
		return KindNotFound
	case clientStatusPattern.MatchString(msg),
		strings.Contains(msg, "bad request"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"):
		return KindClient
	case strings.Contains(msg, "validation"), strings.Contains(msg, "invalid"):
		return KindValidation
	}

	return KindUnknown
}
