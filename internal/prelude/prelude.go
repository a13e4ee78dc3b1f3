// Package prelude implements the non-blocking, timeout-bounded read loop
// that accumulates the bytes of a TLS ClientHello until the SNI parser
// yields a hostname, a size limit, or a wall-clock bound fires.
//
// This is a goroutine-per-connection implementation rather than a single
// reactor loop: "await a read-event completion" is realized as a
// deadline-bounded blocking Read on the connection's own goroutine. Per
// spec §9, this is an acceptable mapping because the prelude buffer and
// loop state are owned exclusively by the one goroutine handling the
// connection; nothing here is shared.
package prelude

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/sniterm/sniterm/internal/clienthello"
	"github.com/sniterm/sniterm/internal/hostname"
)

const (
	// MaxPreludeSize bounds the accumulated prelude at 16 KiB.
	MaxPreludeSize = 16 * 1024

	// TotalDeadline bounds the whole read loop at 30 seconds.
	TotalDeadline = 30 * time.Second

	// readChunkSize is the per-Read request size.
	readChunkSize = 1024

	// pollDeadline is the per-iteration read deadline used while polling
	// for the fast path / early slow-path reads; it stands in for the
	// spec's "query bytes-available, else wait 5s on a completion
	// handle" — here a short deadline plays the same role of not
	// blocking the goroutine indefinitely so TotalDeadline is honored
	// precisely.
	pollDeadline = 100 * time.Millisecond
)

// Subscription is the degraded form of spec §3/§9's "pending read-event
// subscription handle". Because the TLS engine used here (crypto/tls)
// drives reads itself from the net.Conn it is handed, there is no
// separate reactor subscription to hand off; this zero-size marker
// exists only so the call sites read the shape the spec describes.
type Subscription struct{}

// Result is spec §3's PreludeResult.
type Result struct {
	Hostname string
	Prelude  []byte
	Pending  *Subscription
}

// Options configures a single Read call.
type Options struct {
	// ValidatePublicDomain coerces a found hostname to "" when it fails
	// the public-domain predicate (spec §4.3's validate-public-domain
	// flag).
	ValidatePublicDomain bool

	Logger *slog.Logger
}

// Read implements the fast-path/slow-path algorithm of spec §4.3 against
// a freshly accepted connection. The only error it returns is ctx.Err()
// on context cancellation. A malformed or absent ClientHello, hitting the
// size or time bound, and a socket failure (a closed peer, a failed read
// or a failed deadline update) all end the loop with an empty Hostname
// and a nil error; socket failures are logged at error level first.
func Read(ctx context.Context, conn net.Conn, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	buf := make([]byte, 0, readChunkSize*4)
	deadline := time.Now().Add(TotalDeadline)

	for {
		if ctx.Err() != nil {
			conn.SetReadDeadline(time.Time{})
			return Result{Prelude: buf, Pending: &Subscription{}}, ctx.Err()
		}
		if len(buf) >= MaxPreludeSize {
			conn.SetReadDeadline(time.Time{})
			return Result{Prelude: buf, Pending: &Subscription{}}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			conn.SetReadDeadline(time.Time{})
			return Result{Prelude: buf, Pending: &Subscription{}}, nil
		}

		readDeadline := pollDeadline
		if remaining < readDeadline {
			readDeadline = remaining
		}
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			logger.Error("prelude: failed to set read deadline", "error", err)
			return Result{Prelude: buf, Pending: &Subscription{}}, nil
		}

		chunk := make([]byte, readChunkSize)
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			name, status := clienthello.SafeParseServerName(buf, logger)
			if status == clienthello.StatusFound {
				if opts.ValidatePublicDomain && !hostname.IsPublicDomain(name) {
					name = ""
				}
				conn.SetReadDeadline(time.Time{})
				return Result{Hostname: name, Prelude: buf, Pending: &Subscription{}}, nil
			}
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			conn.SetReadDeadline(time.Time{})
			logger.Error("prelude: socket read failed", "error", err)
			return Result{Prelude: buf, Pending: &Subscription{}}, nil
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
