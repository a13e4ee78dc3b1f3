package sniterm

import (
	"errors"
	"net"
	"net/http"
)

// connListener adapts Server.Conns() into a net.Listener so accepted
// secure connections can be served by any net/http-shaped consumer —
// spec §4.6's "adapter conversions presenting the server as a generic
// byte-stream server".
type connListener struct {
	server *Server
}

func (l *connListener) Accept() (net.Conn, error) {
	c, ok := <-l.server.Conns()
	if !ok {
		return nil, errors.New("sniterm: server closed")
	}
	return c, nil
}

func (l *connListener) Close() error   { return l.server.Close() }
func (l *connListener) Addr() net.Addr { return l.server.Addr() }

// Listener exposes the server's secure-connection stream as a standard
// net.Listener.
func (s *Server) Listener() net.Listener {
	return &connListener{server: s}
}

// Serve runs handler over every accepted secure connection using
// net/http, so downstream HTTP code sees an ordinary byte-stream server
// (spec §4.6).
func (s *Server) Serve(handler http.Handler) error {
	httpServer := &http.Server{Handler: handler}
	return httpServer.Serve(s.Listener())
}
