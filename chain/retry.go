package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/metrics"
)

const (
	DefaultCallTimeout     = 10 * time.Second
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 200 * time.Millisecond
)

// do runs fn with a per-attempt timeout and bounded exponential retry.
// Transport failures that survive every attempt are wrapped in ErrUpstreamUnavailable.
func (r *Reader) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	start := time.Now()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.cfg.InitialInterval
	expBackoff.MaxElapsedTime = 0

	var attempts int
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(r.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		r.log.Debug("Retrying ledger call", "network", r.cfg.Network, "method", method, "attempt", attempts, "next", next, "err", err)
	})

	metrics.ChainCallDuration.WithLabelValues(r.cfg.Network.String(), method).Observe(time.Since(start).Seconds())
	metrics.ChainCalls.WithLabelValues(r.cfg.Network.String(), method, metrics.Outcome(err)).Inc()

	if err != nil && isRetryable(err) {
		return fmt.Errorf("%w: %s on %s after %d attempts: %v", interfaces.ErrUpstreamUnavailable, method, r.cfg.Network, attempts, err)
	}
	return err
}

// isRetryable reports whether err looks like a transport failure rather than
// an answer from the node.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ethereum.NotFound), errors.Is(err, bind.ErrNoCode):
		return false
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
