package cmd

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sniterm/sniterm/internal/certmgr"
	"github.com/sniterm/sniterm/internal/config"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage domains and certificates",
	Long:  `Manage registered domains and their TLS certificates.`,
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered domains",
	Long:  `List the domains named in the configuration and their certificate status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tSTATUS\tEXPIRES")

		for _, domain := range cfg.DNS.Domains {
			status, expires := getCertStatus(domain)
			fmt.Fprintf(w, "%s\t%s\t%s\n", domain, status, expires)
		}

		w.Flush()
		return nil
	},
}

var domainAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Add a domain and generate certificate",
	Long: `Manually issue a certificate for a domain ahead of its first handshake.

Example:
  sniterm domain add myproject.test`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]

		manager, err := certmgr.NewManager()
		if err != nil {
			return fmt.Errorf("failed to initialize certificate manager (run 'sniterm ca generate' first): %w", err)
		}

		if err := manager.EnsureCertificate(domain); err != nil {
			return fmt.Errorf("failed to generate certificate: %w", err)
		}

		status, expires := getCertStatus(domain)
		fmt.Printf("Certificate generated for %s\n", domain)
		fmt.Printf("  Status: %s\n", status)
		fmt.Printf("  Expires: %s\n", expires)

		return nil
	},
}

var domainRemoveCmd = &cobra.Command{
	Use:   "remove <domain>",
	Short: "Remove a domain's cached certificate",
	Long: `Remove a domain's cached certificate files from disk. sniterm will
re-issue one on the next handshake for that hostname.

Example:
  sniterm domain remove myproject.test`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]
		certPath, keyPath := certmgr.CertPaths(domain)

		if _, err := os.Stat(certPath); os.IsNotExist(err) {
			return fmt.Errorf("no certificate found for domain: %s", domain)
		}

		if err := os.Remove(certPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove certificate: %w", err)
		}
		if err := os.Remove(keyPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove private key: %w", err)
		}

		fmt.Printf("Removed certificate for %s\n", domain)
		return nil
	},
}

var domainCertCmd = &cobra.Command{
	Use:   "cert <domain>",
	Short: "Show certificate details",
	Long: `Display detailed certificate information for a domain.

Example:
  sniterm domain cert myproject.test`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]
		certPath, _ := certmgr.CertPaths(domain)

		certificate, err := loadCert(certPath)
		if err != nil {
			return fmt.Errorf("no certificate found for domain %s: %w", domain, err)
		}

		fmt.Printf("Certificate for: %s\n\n", domain)
		fmt.Printf("  Subject:      %s\n", certificate.Subject.CommonName)
		fmt.Printf("  Issuer:       %s\n", certificate.Issuer.CommonName)
		fmt.Printf("  Serial:       %s\n", certificate.SerialNumber.String())
		fmt.Printf("  Not Before:   %s\n", certificate.NotBefore.Format(time.RFC3339))
		fmt.Printf("  Not After:    %s\n", certificate.NotAfter.Format(time.RFC3339))

		if len(certificate.DNSNames) > 0 {
			fmt.Printf("  DNS Names:    %s\n", strings.Join(certificate.DNSNames, ", "))
		}

		now := time.Now()
		switch {
		case now.After(certificate.NotAfter):
			fmt.Printf("\n  Status:       EXPIRED\n")
		case now.Add(7 * 24 * time.Hour).After(certificate.NotAfter):
			fmt.Printf("\n  Status:       EXPIRING SOON\n")
		default:
			daysLeft := int(certificate.NotAfter.Sub(now).Hours() / 24)
			fmt.Printf("\n  Status:       Valid (%d days remaining)\n", daysLeft)
		}

		return nil
	},
}

var domainRenewCmd = &cobra.Command{
	Use:   "renew <domain>",
	Short: "Renew certificate for domain",
	Long: `Force renewal of the TLS certificate for a domain.

Example:
  sniterm domain renew myproject.test`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]
		certPath, keyPath := certmgr.CertPaths(domain)

		if _, err := os.Stat(certPath); err == nil {
			os.Remove(certPath)
			os.Remove(keyPath)
		}

		manager, err := certmgr.NewManager()
		if err != nil {
			return fmt.Errorf("failed to initialize certificate manager (run 'sniterm ca generate' first): %w", err)
		}

		if err := manager.EnsureCertificate(domain); err != nil {
			return fmt.Errorf("failed to generate certificate: %w", err)
		}

		status, expires := getCertStatus(domain)
		fmt.Printf("Certificate renewed for %s\n", domain)
		fmt.Printf("  Status: %s\n", status)
		fmt.Printf("  Expires: %s\n", expires)

		return nil
	},
}

// getCertStatus returns the status and expiry date of a domain's cached
// certificate, following certmgr's wildcard-collapsed on-disk layout.
func getCertStatus(domain string) (status, expires string) {
	certPath, _ := certmgr.CertPaths(domain)

	certificate, err := loadCert(certPath)
	if err != nil {
		return "No cert", "-"
	}

	now := time.Now()
	if now.After(certificate.NotAfter) {
		return "Expired", certificate.NotAfter.Format("2006-01-02")
	} else if now.Add(7 * 24 * time.Hour).After(certificate.NotAfter) {
		return "Expiring", certificate.NotAfter.Format("2006-01-02")
	}

	return "Valid", certificate.NotAfter.Format("2006-01-02")
}

func loadCert(certPath string) (*x509.Certificate, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(certData)
	if block == nil {
		return nil, fmt.Errorf("failed to parse certificate PEM")
	}

	return x509.ParseCertificate(block.Bytes)
}

func init() {
	domainCmd.AddCommand(domainListCmd)
	domainCmd.AddCommand(domainAddCmd)
	domainCmd.AddCommand(domainRemoveCmd)
	domainCmd.AddCommand(domainCertCmd)
	domainCmd.AddCommand(domainRenewCmd)
	rootCmd.AddCommand(domainCmd)
}
