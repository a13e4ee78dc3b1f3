// Package localdns is the companion authoritative DNS server: it
// resolves the domains sniterm owns (and their subdomains) straight to
// the TLS front end's own bound address, and forwards every other query
// upstream. Pointing a browser's resolver at it means hostnames like
// "api.test" resolve locally without editing /etc/hosts, and resolve to
// wherever sniterm actually ended up listening rather than a fixed IP
// baked into the DNS config separately from the front end's.
package localdns

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sniterm/sniterm/internal/logging"
)

const (
	// DefaultPort is the default DNS server port.
	DefaultPort = 53

	// DefaultTTL is the default TTL for DNS responses.
	DefaultTTL = 60

	// DefaultUpstream is the default upstream DNS server.
	DefaultUpstream = "8.8.8.8:53"

	// DefaultFrontendAddr mirrors config.Default()'s listen address: if
	// the DNS server is constructed without a frontend to point at, it
	// answers queries as though sniterm is listening on the usual local
	// port.
	DefaultFrontendAddr = "127.0.0.1:8443"
)

// Server is the authoritative DNS server for sniterm's owned domains.
type Server struct {
	// addr is the address the DNS server itself listens on (e.g., "127.0.0.1:53").
	addr string

	// domains is the list of domains (and wildcard patterns, matching
	// the same "*.example" syntax internal/config's CA.Domains accepts)
	// resolved locally instead of forwarded upstream.
	domains []string

	// frontendHost and frontendPort are where the sniterm TLS front end
	// is actually bound. Every local domain answer points here: sniterm
	// multiplexes all hostnames over the one listening socket, so unlike
	// a multi-backend reverse proxy there is exactly one answer to give
	// regardless of which owned hostname was queried.
	frontendHost net.IP
	frontendPort uint16

	// upstream is the upstream DNS server for non-local queries.
	upstream string

	// udpServer is the UDP DNS server.
	udpServer *dns.Server

	// tcpServer is the TCP DNS server.
	tcpServer *dns.Server

	// client is the DNS client for upstream queries.
	client *dns.Client

	// mu protects the server state.
	mu sync.RWMutex

	// running indicates if the server is running.
	running bool

	// prebound listener for privilege dropping
	preboundListener net.PacketConn
}

// Config holds DNS server configuration.
type Config struct {
	// Addr is the address the DNS server listens on (default: "127.0.0.1:53").
	Addr string

	// Domains is the list of domains and wildcard patterns to resolve
	// locally (default: ["localhost"]).
	Domains []string

	// FrontendAddr is the address sniterm's TLS front end is bound to.
	// A answers for owned domains carry its host when that host is IPv4;
	// AAAA answers carry ::1, and only when the host is 127.0.0.1.
	// SRV answers advertise its port. Typically this is the live
	// server.Addr().String() of the running sniterm.Server, not the
	// configured listen address, so a listen address like ":0" still
	// resolves to the port the OS actually picked.
	FrontendAddr string

	// Upstream is the upstream DNS server (default: "8.8.8.8:53").
	Upstream string
}

// DefaultConfig returns a default DNS server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		Domains:      []string{"localhost"},
		FrontendAddr: DefaultFrontendAddr,
		Upstream:     DefaultUpstream,
	}
}

// New creates a new DNS server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf("127.0.0.1:%d", DefaultPort)
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = []string{"localhost"}
	}
	if cfg.FrontendAddr == "" {
		cfg.FrontendAddr = DefaultFrontendAddr
	}
	if cfg.Upstream == "" {
		cfg.Upstream = DefaultUpstream
	}

	host, port := splitFrontendAddr(cfg.FrontendAddr)

	return &Server{
		addr:         cfg.Addr,
		domains:      cfg.Domains,
		frontendHost: host,
		frontendPort: port,
		upstream:     cfg.Upstream,
		client: &dns.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// splitFrontendAddr parses a "host:port" front-end address into the IP
// answers should carry and the port SRV records should advertise. A
// host of "", "0.0.0.0", or "::" (sniterm bound to every interface) is
// not itself a usable answer, so it resolves to the loopback address a
// local client can actually dial.
func splitFrontendAddr(addr string) (net.IP, uint16) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return net.ParseIP("127.0.0.1"), DefaultPort
	}

	ip := net.ParseIP(host)
	if ip == nil || ip.IsUnspecified() {
		ip = net.ParseIP("127.0.0.1")
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		port = DefaultPort
	}

	return ip, uint16(port)
}

// NewWithListener creates a new DNS server using a pre-bound packet listener.
// This is used when ports are bound before dropping privileges.
func NewWithListener(cfg Config, listener net.PacketConn) *Server {
	s := New(cfg)
	s.preboundListener = listener
	return s
}

// Start starts the DNS server on both UDP and TCP.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	// Create DNS handler
	handler := dns.HandlerFunc(s.handleDNS)

	// Start UDP server
	s.udpServer = &dns.Server{
		Addr:    s.addr,
		Net:     "udp",
		Handler: handler,
	}

	// If we have a prebound listener, use it
	if s.preboundListener != nil {
		s.udpServer.PacketConn = s.preboundListener
	}

	// Start TCP server
	s.tcpServer = &dns.Server{
		Addr:    s.addr,
		Net:     "tcp",
		Handler: handler,
	}

	// Start UDP in goroutine
	udpErrCh := make(chan error, 1)
	go func() {
		logging.Info("starting DNS server (UDP)", "addr", s.addr)
		if s.preboundListener != nil {
			udpErrCh <- s.udpServer.ActivateAndServe()
		} else {
			udpErrCh <- s.udpServer.ListenAndServe()
		}
	}()

	// Start TCP in goroutine
	tcpErrCh := make(chan error, 1)
	go func() {
		logging.Info("starting DNS server (TCP)", "addr", s.addr)
		tcpErrCh <- s.tcpServer.ListenAndServe()
	}()

	// Give servers a moment to start and check for immediate errors
	select {
	case err := <-udpErrCh:
		return fmt.Errorf("UDP server failed: %w", err)
	case err := <-tcpErrCh:
		return fmt.Errorf("TCP server failed: %w", err)
	case <-time.After(100 * time.Millisecond):
		// Servers started successfully
	}

	s.running = true
	return nil
}

// Stop stops the DNS server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error

	if s.udpServer != nil {
		if err := s.udpServer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("UDP shutdown: %w", err))
		}
	}

	if s.tcpServer != nil {
		if err := s.tcpServer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("TCP shutdown: %w", err))
		}
	}

	s.running = false

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	logging.Info("DNS server stopped")
	return nil
}

// Running returns true if the server is running.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}

// UpdateConfig updates the DNS server configuration at runtime.
// Domains, upstream, and the front end it points to can be changed
// without restart; the listen address cannot.
func (s *Server) UpdateConfig(domains []string, upstream string, frontendAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(domains) > 0 {
		s.domains = domains
		logging.Info("DNS domains updated", "domains", domains)
	}

	if upstream != "" && upstream != s.upstream {
		s.upstream = upstream
		logging.Info("DNS upstream updated", "upstream", upstream)
	}

	if frontendAddr != "" {
		host, port := splitFrontendAddr(frontendAddr)
		s.frontendHost = host
		s.frontendPort = port
		logging.Info("DNS frontend target updated", "frontend", frontendAddr)
	}
}

// GetDomains returns the current list of domains.
func (s *Server) GetDomains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domains
}

// GetUpstream returns the current upstream DNS server.
func (s *Server) GetUpstream() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upstream
}

// handleDNS handles incoming DNS queries.
func (s *Server) handleDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		logging.Debug("DNS query", "name", q.Name, "type", dns.TypeToString[q.Qtype])

		if s.isLocalDomain(q.Name) {
			s.handleLocalQuery(m, q)
		} else {
			s.handleUpstreamQuery(m, r)
			break // Upstream handles entire message
		}
	}

	if err := w.WriteMsg(m); err != nil {
		logging.Error("failed to write DNS response", "error", err)
	}
}

// isLocalDomain reports whether name falls under a domain this server
// owns. A "*.apex" entry matches the same way a wildcard leaf
// certificate would (any strict subdomain of apex, not apex itself),
// mirroring internal/certmgr's toWildcard collapsing so a domain
// configured once in internal/config's CA.Domains and DNS.Domains lists
// means the same set of hostnames in both places.
func (s *Server) isLocalDomain(name string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, "."))

	for _, domain := range s.domains {
		domain = strings.ToLower(domain)

		if apex, ok := strings.CutPrefix(domain, "*."); ok {
			if name != apex && strings.HasSuffix(name, "."+apex) {
				return true
			}
			continue
		}

		if name == domain || strings.HasSuffix(name, "."+domain) {
			return true
		}
	}
	return false
}

// handleLocalQuery answers a query for an owned domain. An A answer
// carries the front end's bound host when it is IPv4; an AAAA answer
// carries ::1 only when that host is 127.0.0.1; an SRV answer advertises
// its bound port with the queried name as target, since sniterm
// terminates every hostname it owns on that one socket rather than
// routing to a different port per name.
func (s *Server) handleLocalQuery(m *dns.Msg, q dns.Question) {
	switch q.Qtype {
	case dns.TypeA:
		if ip4 := s.frontendHost.To4(); ip4 != nil {
			rr := &dns.A{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    DefaultTTL,
				},
				A: ip4,
			}
			m.Answer = append(m.Answer, rr)
		}

	case dns.TypeAAAA:
		if s.frontendHost.Equal(net.ParseIP("127.0.0.1")) {
			rr := &dns.AAAA{
				Hdr: dns.RR_Header{
					Name:   q.Name,
					Rrtype: dns.TypeAAAA,
					Class:  dns.ClassINET,
					Ttl:    DefaultTTL,
				},
				AAAA: net.ParseIP("::1"),
			}
			m.Answer = append(m.Answer, rr)
		}

	case dns.TypeSRV:
		rr := &dns.SRV{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeSRV,
				Class:  dns.ClassINET,
				Ttl:    DefaultTTL,
			},
			Priority: 0,
			Weight:   0,
			Port:     s.frontendPort,
			Target:   q.Name,
		}
		m.Answer = append(m.Answer, rr)

	default:
		// Return empty response for unsupported types
		m.Rcode = dns.RcodeSuccess
	}
}

// handleUpstreamQuery forwards a query to the upstream DNS server.
func (s *Server) handleUpstreamQuery(m *dns.Msg, r *dns.Msg) {
	resp, _, err := s.client.Exchange(r, s.upstream)
	if err != nil {
		logging.Error("upstream DNS query failed", "error", err)
		m.Rcode = dns.RcodeServerFailure
		return
	}

	// Copy response
	m.Answer = resp.Answer
	m.Ns = resp.Ns
	m.Extra = resp.Extra
	m.Rcode = resp.Rcode
}
