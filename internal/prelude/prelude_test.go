package prelude

import (
	"context"
	"net"
	"testing"
	"time"
)

func buildClientHelloWithSNI(host string) []byte {
	sni := append([]byte{0x00, byte(len(host) >> 8), byte(len(host))}, host...)
	sniList := append([]byte{byte(len(sni) >> 8), byte(len(sni))}, sni...)
	ext := append([]byte{0x00, 0x00, byte(len(sniList) >> 8), byte(len(sniList))}, sniList...)

	body := make([]byte, 0, 128)
	body = append(body, 0x03, 0x03)
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)
	body = append(body, 0x00, 0x02, 0x13, 0x01)
	body = append(body, 0x01, 0x00)
	body = append(body, byte(len(ext)>>8), byte(len(ext)))
	body = append(body, ext...)

	handshake := append([]byte{0x01, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}, body...)
	record := append([]byte{0x16, 0x03, 0x01, byte(len(handshake) >> 8), byte(len(handshake))}, handshake...)
	return record
}

func TestRead_FastPath(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	full := buildClientHelloWithSNI("fast.example.com")
	go func() {
		client.Write(full)
	}()

	result, err := Read(context.Background(), server, Options{})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if result.Hostname != "fast.example.com" {
		t.Fatalf("got hostname %q, want fast.example.com", result.Hostname)
	}
	if len(result.Prelude) == 0 {
		t.Fatal("expected non-empty prelude")
	}
}

func TestRead_FragmentedDelivery(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	full := buildClientHelloWithSNI("fragmented.example.com")
	go func() {
		for i := 0; i < len(full); i += 3 {
			end := i + 3
			if end > len(full) {
				end = len(full)
			}
			client.Write(full[i:end])
		}
	}()

	result, err := Read(context.Background(), server, Options{})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if result.Hostname != "fragmented.example.com" {
		t.Fatalf("got hostname %q, want fragmented.example.com", result.Hostname)
	}
}

func TestRead_ValidatePublicDomainCoercesToNull(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	full := buildClientHelloWithSNI("localhost")
	go func() { client.Write(full) }()

	result, err := Read(context.Background(), server, Options{ValidatePublicDomain: true})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if result.Hostname != "" {
		t.Fatalf("got hostname %q, want empty (coerced by ValidatePublicDomain)", result.Hostname)
	}
}

func TestRead_ClosedConnectionReturnsNoHostname(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	client.Close()

	result, err := Read(context.Background(), server, Options{})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if result.Hostname != "" {
		t.Fatalf("got hostname %q, want empty", result.Hostname)
	}
}

func TestRead_ContextCancellation(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, server, Options{})
	if err == nil {
		t.Fatal("expected error from a pre-cancelled context")
	}
}

func TestRead_HonorsTotalDeadlineQuickly(t *testing.T) {
	// Not a full 30s test; verifies the per-iteration deadline mechanism
	// doesn't itself block longer than a couple of polling intervals when
	// the peer sends nothing and then closes shortly after.
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		client.Close()
	}()

	start := time.Now()
	result, err := Read(context.Background(), server, Options{})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Read took %v, expected to return shortly after peer close", elapsed)
	}
	if result.Hostname != "" {
		t.Fatalf("got hostname %q, want empty", result.Hostname)
	}
}
