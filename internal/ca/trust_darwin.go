//go:build darwin

// Package ca provides the root Certificate Authority sniterm uses to
// sign the leaf certificates it mints on demand.
package ca

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// isRoot returns true if the current process is running as root.
func isRoot() bool {
	return os.Geteuid() == 0
}

// InstallTrust adds the CA certificate to the macOS System Keychain.
// This requires sudo/admin privileges.
func InstallTrust() error {
	certPath := CertPath()

	if !Exists() {
		return fmt.Errorf("CA certificate not found at %s, run 'sniterm ca generate' first", certPath)
	}

	// Check if already trusted
	if IsTrusted() {
		return nil // Already trusted, nothing to do
	}

	// Add to System Keychain with trust settings
	// -d: add to admin cert store
	// -r trustRoot: trust as root certificate
	// -k: keychain to add to
	var cmd *exec.Cmd
	if isRoot() {
		// Already running as root, no need for sudo
		cmd = exec.Command("security", "add-trusted-cert",
			"-d",
			"-r", "trustRoot",
			"-k", "/Library/Keychains/System.keychain",
			certPath,
		)
	} else {
		cmd = exec.Command("sudo", "security", "add-trusted-cert",
			"-d",
			"-r", "trustRoot",
			"-k", "/Library/Keychains/System.keychain",
			certPath,
		)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to add CA to System Keychain: %w\n%s", err, stderr.String())
	}

	return nil
}

// UninstallTrust removes the CA certificate from the macOS System Keychain.
// This requires sudo/admin privileges.
func UninstallTrust() error {
	// Find and delete the certificate by name
	var cmd *exec.Cmd
	if isRoot() {
		// Already running as root, no need for sudo
		cmd = exec.Command("security", "delete-certificate",
			"-c", caCommonName,
			"/Library/Keychains/System.keychain",
		)
	} else {
		cmd = exec.Command("sudo", "security", "delete-certificate",
			"-c", caCommonName,
			"/Library/Keychains/System.keychain",
		)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// If the certificate doesn't exist, that's fine
		if strings.Contains(stderr.String(), "could not be found") ||
			strings.Contains(stderr.String(), "SecKeychainSearchCopyNext") {
			return nil
		}
		return fmt.Errorf("failed to remove CA from System Keychain: %w\n%s", err, stderr.String())
	}

	return nil
}

// IsTrusted checks that the System Keychain's trusted entry for
// caCommonName is the *current* on-disk CA, not merely a same-named
// one. 'sniterm ca generate --force' produces a new keypair under the
// same common name every time, so a name-only check would report
// "trusted" for a keychain entry left over from a CA that was since
// regenerated and whose leaf certificates the keychain would no longer
// actually vouch for.
func IsTrusted() bool {
	if !Exists() {
		return false
	}

	onDisk, err := Load()
	if err != nil {
		return false
	}

	cmd := exec.Command("security", "find-certificate",
		"-c", caCommonName,
		"-p",
		"/Library/Keychains/System.keychain",
	)

	out, err := cmd.Output()
	if err != nil {
		// find-certificate exits non-zero when nothing matches.
		return false
	}

	block, _ := pem.Decode(out)
	if block == nil {
		return false
	}
	keychainCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}

	return keychainCert.SerialNumber.Cmp(onDisk.Certificate.SerialNumber) == 0
}

// NeedsSudo returns true if trust operations require sudo.
func NeedsSudo() bool {
	return true
}

// TrustStoreName returns a human-readable name for the trust store.
func TrustStoreName() string {
	return "macOS System Keychain"
}
