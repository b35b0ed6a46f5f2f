// Package probe implements the readiness/liveness check for the database
// container.
//
// The check asks the operating system's network stack directly: the
// database is considered live once its main server process accepts a TCP
// connection on its listening port. This is deliberately shallow — the
// supervisor only needs "has the server started", not query-level health,
// and a dial succeeds exactly when the server socket is up.
package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Prober performs TCP connectivity checks against the database address.
//
// A probe makes up to Retries connection attempts, each bounded by Timeout,
// sleeping Interval between attempts. The zero value is not useful;
// construct with New.
type Prober struct {
	// Timeout bounds a single connection attempt.
	Timeout time.Duration

	// Retries is the total number of attempts. Values below 1 are treated
	// as 1 — a probe always dials at least once.
	Retries int

	// Interval is the pause between consecutive attempts.
	Interval time.Duration
}

// New returns a Prober with the given attempt budget.
func New(timeout time.Duration, retries int, interval time.Duration) *Prober {
	return &Prober{Timeout: timeout, Retries: retries, Interval: interval}
}

// Check dials host:port over TCP until an attempt succeeds or the budget is
// exhausted. The probe connection is closed immediately on success — only
// the accept matters.
//
// The context cancels the wait between attempts and any in-flight dial, so
// a supervisor-imposed deadline cuts the whole probe short cleanly.
func (p *Prober) Check(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	attempts := p.Retries
	if attempts < 1 {
		attempts = 1
	}

	dialer := net.Dialer{Timeout: p.Timeout}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			// Wait out the interval, but give up immediately if the
			// caller's context is done.
			select {
			case <-time.After(p.Interval):
			case <-ctx.Done():
				return fmt.Errorf("probe of %s cancelled: %w", addr, ctx.Err())
			}
		}

		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("database at %s not reachable after %d attempt(s): %w", addr, attempts, lastErr)
}
