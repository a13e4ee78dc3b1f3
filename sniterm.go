// Package sniterm is a TLS front-end that terminates connections for
// multiple domains on a single listening socket, selecting per-connection
// certificate material by inspecting the SNI field of the unencrypted
// TLS ClientHello.
//
// The package does not implement TLS itself; it peeks the plaintext
// prelude of a connection, resolves a certificate for the SNI hostname,
// and hands the still-unconsumed bytes to the stdlib crypto/tls engine
// so the handshake proceeds as though the peek never happened.
package sniterm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/sniterm/sniterm/internal/prelude"
	"github.com/sniterm/sniterm/internal/streamconn"
)

// SecurityContext is the certificate/key bundle used to terminate one TLS
// session (spec §3). The core treats it as an opaque handle produced by
// an external collaborator.
type SecurityContext = tls.Certificate

// ResolverFunc maps an SNI hostname to a SecurityContext. It is called at
// most once per accepted connection, and not at all when the connection
// has no hostname; it may return nil to fall through to the default
// context (spec §4.4).
type ResolverFunc func(hostname string) (*SecurityContext, error)

// Options configures Bind.
type Options struct {
	// SupportedProtocols is the ALPN list forwarded verbatim to the TLS
	// engine.
	SupportedProtocols []string

	// DefaultSecurityContext is used when Resolver returns nil or is
	// unset.
	DefaultSecurityContext *SecurityContext

	// Resolver performs the per-hostname lookup.
	Resolver ResolverFunc

	// RequireHostname rejects connections whose ClientHello omitted SNI
	// (spec: requiresHandshakesWithHostname).
	RequireHostname bool

	// ValidatePublicDomain coerces SNI values failing the public-domain
	// predicate to "no SNI" (spec: validatePublicDomainFormat).
	ValidatePublicDomain bool

	// Backlog, V6Only and Shared are forwarded to the platform bind
	// where the listener construction supports them; net.ListenConfig
	// on most platforms only honors these via SO_REUSEPORT-style socket
	// options, which is out of scope for the stdlib listener this
	// package builds on, so they are accepted for interface parity with
	// spec §6 and recorded but otherwise inert here.
	Backlog int
	V6Only  bool
	Shared  bool

	Logger *slog.Logger
}

// Conn is a secure connection surfaced by the server: the duplex byte
// channel resulting from a successful handshake, plus the peer metadata
// spec §6 requires the output stream to carry.
type Conn struct {
	*streamconn.Conn

	tlsConn        *tls.Conn
	RemoteAddress  net.Addr
	NegotiatedALPN string

	// Hostname is the SNI value the ClientHello carried, or "" for a
	// connection terminated by DefaultSecurityContext because none was
	// present (spec §4.4). internal/logging's access logger uses this to
	// attribute a connection to the domain it addressed.
	Hostname string
}

// PeerCertificates returns the certificate chain presented by the peer,
// or nil if the client did not present one. This package performs no
// client-certificate validation of its own (spec §1 non-goals); it only
// surfaces what crypto/tls already negotiated.
func (c *Conn) PeerCertificates() []*x509.Certificate {
	return c.tlsConn.ConnectionState().PeerCertificates
}

// Server owns a listening socket, the accept loop, and the output stream
// of secure connections (spec §3 "Server state", §4.6).
type Server struct {
	listener net.Listener
	opts     Options
	logger   *slog.Logger

	out chan *Conn

	mu     sync.Mutex
	closed bool

	// sendMu serializes publishing to out against closing it: Close sets
	// closed and closes out under sendMu, and dispatch's final publish
	// checks closed and sends under the same lock, so the two can never
	// interleave into a send on a closed channel.
	sendMu sync.Mutex

	// acceptWG tracks only acceptLoop. Close waits on it so the listener
	// is fully drained before returning, but dispatch goroutines are
	// deliberately untracked: a handshake has no deadline once the
	// prelude phase hands off to crypto/tls (internal/prelude clears the
	// read deadline it was enforcing), so a stalled peer must never be
	// able to block Close (spec §4.6 only requires late results be
	// suppressed, not that Close wait for them).
	acceptWG sync.WaitGroup
}

// Bind creates the listening socket and starts the accept loop.
func Bind(network, address string, opts Options) (*Server, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return newServer(ln, opts), nil
}

// BindListener wraps an already-bound net.Listener (e.g. one created with
// platform-specific options before privileges are dropped) instead of
// creating one itself.
func BindListener(ln net.Listener, opts Options) *Server {
	return newServer(ln, opts)
}

func newServer(ln net.Listener, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listener: ln,
		opts:     opts,
		logger:   logger,
		out:      make(chan *Conn, 16),
	}
	s.acceptWG.Add(1)
	go s.acceptLoop()
	return s
}

// Conns returns the output stream of secure connections, in the order
// their handshakes completed (spec §5: "accept order is preserved... in
// the order their handshakes completed, which need not match accept
// order").
func (s *Server) Conns() <-chan *Conn {
	return s.out
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close is idempotent: it cancels further accepts, closes the listener,
// and closes the output stream. In-flight prelude reads and handshakes
// are not force-cancelled and Close does not wait for them; their
// results are suppressed once closed is observed (spec §4.6, §5).
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.acceptWG.Wait()

	s.sendMu.Lock()
	close(s.out)
	s.sendMu.Unlock()

	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// acceptLoop accepts raw connections and dispatches each to its own
// goroutine (spec §5: per-connection work runs as independent tasks; the
// server and output stream are the only shared-mutable points).
func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Error("sniterm: accept failed", "error", err)
			return
		}

		go s.dispatch(conn)
	}
}

// dispatch runs the Accept Dispatcher of spec §4.5 for one raw
// connection.
func (s *Server) dispatch(raw net.Conn) {
	ctx := context.Background()

	result, err := prelude.Read(ctx, raw, prelude.Options{
		ValidatePublicDomain: s.opts.ValidatePublicDomain,
		Logger:               s.logger,
	})
	if err != nil {
		raw.Close()
		return
	}

	if s.opts.RequireHostname && result.Hostname == "" {
		raw.Close()
		return
	}

	secCtx := s.resolveContext(result.Hostname)
	if secCtx == nil {
		s.logger.Warn("sniterm: no security context available", "hostname", result.Hostname)
		raw.Close()
		return
	}

	peeked := newPeekedConn(raw, result.Prelude)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*secCtx},
		NextProtos:   s.opts.SupportedProtocols,
		MinVersion:   tls.VersionTLS12,
	}

	tlsConn := tls.Server(peeked, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.logger.Warn("sniterm: TLS handshake failed", "hostname", result.Hostname, "error", err)
		tlsConn.Close()
		return
	}

	if s.isClosed() {
		tlsConn.Close()
		return
	}

	state := tlsConn.ConnectionState()
	conn := &Conn{
		Conn:           streamconn.New(tlsConn),
		tlsConn:        tlsConn,
		RemoteAddress:  raw.RemoteAddr(),
		NegotiatedALPN: state.NegotiatedProtocol,
		Hostname:       result.Hostname,
	}

	if !s.publish(conn) {
		conn.Close()
	}
}

// publish sends conn on out unless Close has already run. The send and
// the closed check share sendMu with Close's own close(s.out), so a
// dispatch goroutine can never send on an already-closed channel (spec
// §4.5 step 6, §4.6's "concurrent accept callbacks that complete after
// close must not publish").
func (s *Server) publish(conn *Conn) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.isClosed() {
		return false
	}
	s.out <- conn
	return true
}

// resolveContext implements the Context Resolver of spec §4.4.
func (s *Server) resolveContext(hostname string) *SecurityContext {
	if s.opts.Resolver != nil && hostname != "" {
		cert, err := s.opts.Resolver(hostname)
		if err != nil {
			s.logger.Warn("sniterm: resolver error", "hostname", hostname, "error", err)
		}
		if cert != nil {
			return cert
		}
	}
	return s.opts.DefaultSecurityContext
}
