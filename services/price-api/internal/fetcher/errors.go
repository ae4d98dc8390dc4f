package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamEmptyResult = errors.New("upstream returned no records")
	ErrInvalidSymbol       = errors.New("invalid symbol")
)

// classify wraps err with the taxonomy sentinel that describes it, keeping
// the original error in the chain for logging.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamEmptyResult) {
		return err
	}

	kind := ErrUpstreamUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrUpstreamTimeout
	}

	return fmt.Errorf("%w: %s: %w", kind, provider, err)
}

// IsUpstreamFailure reports whether err belongs to the upstream taxonomy.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamEmptyResult)
}
