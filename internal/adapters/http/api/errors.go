package api

import (
	"errors"
	"net/http"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/mq/queue"
	"github.com/okian/scoreboard/internal/domain/ranking"
)

// Sentinel kinds for transport-level failures.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("too many requests")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// Kinds reported in the error envelope beside the domain kinds.
const (
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindRateLimited  = "rate_limited"
	kindBackpressure = "backpressure"
	kindUnavailable  = "unavailable"
)

const internalMessage = "internal server error"

// classify maps err to a status code and envelope kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, kindUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, kindForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, kindRateLimited
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, kindBackpressure
	case errors.Is(err, ErrUnavailable), errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable, kindUnavailable
	}

	switch kind := ranking.Kind(err); kind {
	case ranking.KindValidation:
		return http.StatusBadRequest, kind
	case ranking.KindNotFound:
		return http.StatusNotFound, kind
	default:
		return http.StatusInternalServerError, kind
	}
}
