package sniterm

import "net"

// peekedConn prepends already-read prelude bytes to a net.Conn's read
// stream, so the TLS engine sees "bytes already consumed from the wire"
// exactly as spec §4.5 step 5 requires, without the dispatcher needing
// its own buffering reader.
type peekedConn struct {
	net.Conn
	prelude []byte
	offset  int
}

func newPeekedConn(conn net.Conn, prelude []byte) *peekedConn {
	return &peekedConn{Conn: conn, prelude: prelude}
}

func (p *peekedConn) Read(b []byte) (int, error) {
	if p.offset < len(p.prelude) {
		n := copy(b, p.prelude[p.offset:])
		p.offset += n
		return n, nil
	}
	return p.Conn.Read(b)
}
