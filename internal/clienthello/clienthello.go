// Package clienthello parses the SNI server-name extension out of an
// unencrypted TLS ClientHello without allocating unbounded buffers and
// without ever reading past the supplied buffer.
package clienthello

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/sniterm/sniterm/internal/hostname"
)

// Status describes the outcome of parsing a candidate buffer.
type Status int

const (
	// StatusIncomplete means the buffer is shorter than the minimum
	// ClientHello length or ends inside the session id; more bytes may
	// yield a hostname.
	StatusIncomplete Status = iota
	// StatusAbsent means no server_name extension that validates was
	// found. The record length is not checked, so a truncated prefix
	// that does not yet reach the extension also reports StatusAbsent.
	StatusAbsent
	// StatusMalformed means the buffer does not start with a TLS
	// handshake record carrying a ClientHello.
	StatusMalformed
	// StatusFound means a hostname was extracted.
	StatusFound
)

// TLS record/handshake/extension constants (RFC 8446 §4, RFC 6066 §3).
const (
	recordTypeHandshake     = 0x16
	handshakeTypeClientHello = 0x01
	extensionTypeServerName = 0x0000
	serverNameTypeHostname  = 0x00

	recordHeaderLen    = 5
	handshakeHeaderLen = 4
	randomLen          = 32
	// minimum bytes to even attempt a parse: record header (5) +
	// handshake header (4) + version (2) + random (32) + session-id
	// length (1) + minimal extension framing.
	minClientHelloLen = 53
)

// ParseServerName implements the scan described in spec §4.1: it treats
// buf as the start of a TLS record, walks past the fixed ClientHello
// fields, then scans extensions one byte at a time on any mismatch so a
// legitimate SNI is still found even past spurious near-matches. It never
// panics and never reads past len(buf).
func ParseServerName(buf []byte) (string, Status) {
	if len(buf) < minClientHelloLen {
		return "", StatusIncomplete
	}
	if buf[0] != recordTypeHandshake {
		return "", StatusMalformed
	}
	if buf[recordHeaderLen] != handshakeTypeClientHello {
		return "", StatusMalformed
	}

	// Skip 3-byte handshake length, 2-byte version, 32-byte random.
	pos := recordHeaderLen + handshakeHeaderLen + 2 + randomLen
	if pos+1 > len(buf) {
		return "", StatusIncomplete
	}

	sessionIDLen := int(buf[pos])
	pos++
	pos += sessionIDLen

	// Scan forward for the server_name extension. On any candidate that
	// fails to validate, advance a single byte and retry.
	for pos+9 <= len(buf) {
		name, ok := tryExtensionAt(buf, pos)
		if ok {
			return name, StatusFound
		}
		pos++
	}

	if pos >= len(buf) {
		return "", StatusIncomplete
	}
	return "", StatusAbsent
}

// tryExtensionAt attempts to interpret buf[pos:] as a 2-byte extension
// type, a 2-byte extension length E, and a 2-byte server-name-list
// length L, followed by the server_name_list itself. It returns
// (hostname, true) only when every bound check, the extension type, and
// the hostname validator all pass; any failure returns (_, false) so the
// caller advances one byte, per spec §4.1 steps 5-9.
func tryExtensionAt(buf []byte, pos int) (string, bool) {
	if pos+6 > len(buf) {
		return "", false
	}
	extType := binary.BigEndian.Uint16(buf[pos : pos+2])
	if extType != extensionTypeServerName {
		return "", false
	}
	extLen := int(binary.BigEndian.Uint16(buf[pos+2 : pos+4]))
	listLen := int(binary.BigEndian.Uint16(buf[pos+4 : pos+6]))

	if extLen <= listLen {
		return "", false
	}
	if pos+6+listLen > len(buf) {
		return "", false
	}

	p := pos + 6
	if buf[p] != serverNameTypeHostname {
		return "", false
	}
	p++

	nameLen := int(binary.BigEndian.Uint16(buf[p : p+2]))
	p += 2

	if nameLen >= extLen {
		return "", false
	}
	if p+nameLen > len(buf) {
		return "", false
	}

	name := string(buf[p : p+nameLen])
	if !hostname.IsGeneric(name) {
		return "", false
	}
	return name, true
}

// SafeParseServerName is the network-facing entry point: it recovers from
// any unexpected panic in the parser, logs the offending buffer (base64,
// so it is safe to put in a log line) at debug level, and degrades to
// "no hostname" rather than propagating.
func SafeParseServerName(buf []byte, logger *slog.Logger) (name string, status Status) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("clienthello: parser panicked, treating as malformed",
				"panic", fmt.Sprint(r),
				"buf_b64", base64.StdEncoding.EncodeToString(buf))
			name, status = "", StatusMalformed
		}
	}()
	return ParseServerName(buf)
}
