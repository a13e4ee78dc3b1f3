// Package certmgr issues and caches leaf TLS certificates on demand,
// signed by the locally trusted CA in internal/ca. A Manager's Resolve
// method has the shape sniterm.ResolverFunc expects, so it plugs
// straight into Options.Resolver to terminate any hostname covered by
// the CA's configured domains without a pre-provisioned certificate
// per site.
package certmgr

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sniterm/sniterm/internal/ca"
	"github.com/sniterm/sniterm/internal/paths"
)

const (
	// certValidityDays is how long issued certificates are valid.
	certValidityDays = 30

	// renewBeforeDays is how many days before expiry a cached
	// certificate is treated as no longer valid.
	renewBeforeDays = 7

	certFileSuffix = ".pem"
	keyFileSuffix  = "-key.pem"
)

var (
	// ErrNoCA is returned when the signing CA is not available.
	ErrNoCA = errors.New("CA not available - run 'sniterm ca generate' first")

	// ErrInvalidDomain is returned when a hostname is empty.
	ErrInvalidDomain = errors.New("invalid domain name")
)

// Manager issues and caches per-hostname leaf certificates signed by a
// single root CA.
type Manager struct {
	ca    *ca.CA
	mu    sync.RWMutex
	cache map[string]*tls.Certificate
}

// NewManager loads the CA from disk and returns a Manager ready to
// issue certificates. It fails if no CA has been generated yet.
func NewManager() (*Manager, error) {
	rootCA, err := ca.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCA, err)
	}

	if err := os.MkdirAll(paths.CertsDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certs directory: %w", err)
	}

	return &Manager{
		ca:    rootCA,
		cache: make(map[string]*tls.Certificate),
	}, nil
}

// Resolve implements sniterm's ResolverFunc shape: it returns a
// SecurityContext for any hostname, generating and caching a wildcard
// leaf certificate signed by the CA as needed.
func (m *Manager) Resolve(hostname string) (*tls.Certificate, error) {
	return m.GetCertificate(&tls.ClientHelloInfo{ServerName: hostname})
}

// GetCertificate returns a certificate for the given domain. It is
// also usable directly as tls.Config.GetCertificate.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	domain := hello.ServerName
	if domain == "" {
		return nil, ErrInvalidDomain
	}

	domain = strings.ToLower(domain)
	wildcardDomain := toWildcard(domain)

	m.mu.RLock()
	cert, ok := m.cache[wildcardDomain]
	m.mu.RUnlock()
	if ok && isValid(cert) {
		return cert, nil
	}

	cert, err := m.loadFromDisk(wildcardDomain)
	if err == nil && isValid(cert) {
		m.mu.Lock()
		m.cache[wildcardDomain] = cert
		m.mu.Unlock()
		return cert, nil
	}

	cert, err = m.generate(wildcardDomain, domain)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[wildcardDomain] = cert
	m.mu.Unlock()

	return cert, nil
}

// generate creates and signs a new leaf certificate for the given
// domain, caching it to disk.
func (m *Manager) generate(wildcardDomain, originalDomain string) (*tls.Certificate, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := generateSerialNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	dnsNames := buildDNSNames(wildcardDomain, originalDomain)

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"sniterm"},
			CommonName:   wildcardDomain,
		},
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, certValidityDays),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
	}

	certDER, err := x509.CreateCertificate(
		rand.Reader,
		template,
		m.ca.Certificate,
		&privateKey.PublicKey,
		m.ca.PrivateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := m.saveToDisk(wildcardDomain, certPEM, keyPEM); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to cache certificate: %v\n", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS certificate: %w", err)
	}

	return &tlsCert, nil
}

func (m *Manager) loadFromDisk(wildcardDomain string) (*tls.Certificate, error) {
	filename := domainToFilename(wildcardDomain)
	certPath := filepath.Join(paths.CertsDir(), filename+certFileSuffix)
	keyPath := filepath.Join(paths.CertsDir(), filename+keyFileSuffix)

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tlsCert, nil
}

func (m *Manager) saveToDisk(wildcardDomain string, certPEM, keyPEM []byte) error {
	filename := domainToFilename(wildcardDomain)
	certPath := filepath.Join(paths.CertsDir(), filename+certFileSuffix)
	keyPath := filepath.Join(paths.CertsDir(), filename+keyFileSuffix)

	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		os.Remove(certPath)
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// toWildcard converts a domain to its wildcard form, e.g.
// "api.example.test" -> "*.example.test"; a bare TLD+1 domain has no
// wildcard form and is returned unchanged.
func toWildcard(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) <= 2 {
		return domain
	}
	return "*." + strings.Join(parts[1:], ".")
}

func buildDNSNames(wildcardDomain, originalDomain string) []string {
	names := make(map[string]bool)
	names[wildcardDomain] = true
	if strings.HasPrefix(wildcardDomain, "*.") {
		names[wildcardDomain[2:]] = true
	}
	names[originalDomain] = true

	result := make([]string, 0, len(names))
	for name := range names {
		result = append(result, name)
	}
	return result
}

func domainToFilename(domain string) string {
	safe := strings.ReplaceAll(domain, "*", "_wildcard_")
	safe = strings.ReplaceAll(safe, ":", "_")

	if len(safe) > 200 {
		hash := sha256.Sum256([]byte(domain))
		safe = hex.EncodeToString(hash[:16])
	}
	return safe
}

func isValid(cert *tls.Certificate) bool {
	if cert == nil || len(cert.Certificate) == 0 {
		return false
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return false
	}
	renewTime := x509Cert.NotAfter.AddDate(0, 0, -renewBeforeDays)
	return time.Now().Before(renewTime)
}

func generateSerialNumber() (*big.Int, error) {
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, serialNumberLimit)
}

// EnsureCertificate issues and caches a certificate for domain if one
// isn't already cached, without returning it. It is used by
// dockerresolver to pre-warm a certificate as soon as a container's
// hostname label is discovered, rather than waiting for the first TLS
// handshake to pay the signing cost.
func (m *Manager) EnsureCertificate(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
	return err
}

// CertPaths returns the on-disk certificate and key paths that would
// hold domain's leaf certificate, following the same wildcard
// collapsing and filename sanitization GetCertificate uses. It does
// not check that the files exist.
func CertPaths(domain string) (certPath, keyPath string) {
	wildcardDomain := toWildcard(strings.ToLower(domain))
	filename := domainToFilename(wildcardDomain)
	return filepath.Join(paths.CertsDir(), filename+certFileSuffix),
		filepath.Join(paths.CertsDir(), filename+keyFileSuffix)
}

// ClearCache removes all cached certificates from memory and disk.
func (m *Manager) ClearCache() error {
	m.mu.Lock()
	m.cache = make(map[string]*tls.Certificate)
	m.mu.Unlock()

	entries, err := os.ReadDir(paths.CertsDir())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(paths.CertsDir(), entry.Name()))
		}
	}
	return nil
}
