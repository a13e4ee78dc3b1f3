package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sniterm/sniterm/internal/ca"
	"github.com/sniterm/sniterm/internal/config"
	"github.com/spf13/cobra"
)

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Manage the local Certificate Authority",
	Long:  `Manage the local Certificate Authority used for signing leaf certificates.`,
}

var caGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new root CA",
	Long: `Generate a new root Certificate Authority keypair.

This creates an ECDSA P-384 private key and a self-signed CA certificate
valid for one year, constrained by a Name Constraints extension to the
domains configured under ca.domains so it cannot sign for hostnames
sniterm was never configured to own. The CA is used to sign leaf
certificates for every domain sniterm terminates.

WARNING: Regenerating the CA will invalidate all certificates issued
         under it. Clients will need to re-trust the new CA.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		if ca.Exists() && !force {
			fmt.Println("CA already exists. Use --force to regenerate.")
			fmt.Printf("  Certificate: %s\n", ca.CertPath())
			fmt.Printf("  Private key: %s\n", ca.KeyPath())
			os.Exit(1)
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}

		generated, err := ca.Generate(cfg.CA.Domains...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate CA: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("CA generated successfully.")
		fmt.Printf("  Certificate: %s\n", ca.CertPath())
		fmt.Printf("  Private key: %s\n", ca.KeyPath())
		fmt.Printf("  Valid until: %s\n", generated.Certificate.NotAfter.Format("2006-01-02"))
		fmt.Printf("  Scoped to:   %s\n", strings.Join(cfg.CA.Domains, ", "))
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  1. Trust the CA, or run: sniterm ca trust")
		fmt.Println("  2. Run: sniterm serve")
	},
}

var caInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show CA information",
	Long:  `Display information about the current root CA certificate.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !ca.Exists() {
			fmt.Println("No CA found. Run 'sniterm ca generate' to create one.")
			os.Exit(1)
		}

		loaded, err := ca.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load CA: %v\n", err)
			os.Exit(1)
		}

		cert := loaded.Certificate
		fmt.Println("CA Information:")
		fmt.Printf("  Subject:      %s\n", cert.Subject.CommonName)
		fmt.Printf("  Issuer:       %s\n", cert.Issuer.CommonName)
		fmt.Printf("  Serial:       %s\n", cert.SerialNumber.Text(16))
		fmt.Printf("  Valid from:   %s\n", cert.NotBefore.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Valid until:  %s\n", cert.NotAfter.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Key type:     ECDSA P-384\n")
		if len(cert.PermittedDNSDomains) > 0 {
			fmt.Printf("  Scoped to:    %s\n", strings.Join(cert.PermittedDNSDomains, ", "))
		} else {
			fmt.Printf("  Scoped to:    any domain (unconstrained)\n")
		}
		fmt.Println()
		fmt.Printf("  Certificate:  %s\n", ca.CertPath())
		fmt.Printf("  Private key:  %s\n", ca.KeyPath())
	},
}

var caTrustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Install the CA certificate into the system trust store",
	Long:  `Install the root CA certificate into the current platform's trust store so clients stop warning about it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ca.Exists() {
			return fmt.Errorf("no CA found, run 'sniterm ca generate' first")
		}
		if ca.IsTrusted() {
			fmt.Printf("CA is already trusted in the %s.\n", ca.TrustStoreName())
			return nil
		}
		if ca.NeedsSudo() {
			fmt.Printf("Installing CA into the %s (you may be prompted for your password)...\n", ca.TrustStoreName())
		}
		if err := ca.InstallTrust(); err != nil {
			return fmt.Errorf("failed to install CA into the %s: %w", ca.TrustStoreName(), err)
		}
		fmt.Printf("CA installed into the %s.\n", ca.TrustStoreName())
		return nil
	},
}

func init() {
	caGenerateCmd.Flags().BoolP("force", "f", false, "Regenerate CA even if one exists")
	caCmd.AddCommand(caGenerateCmd)
	caCmd.AddCommand(caInfoCmd)
	caCmd.AddCommand(caTrustCmd)
	rootCmd.AddCommand(caCmd)
}
