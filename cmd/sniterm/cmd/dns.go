package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sniterm/sniterm/internal/config"
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Inspect the companion DNS server configuration",
	Long:  `Inspect the configuration of the local DNS server run as part of 'sniterm serve'.`,
}

var dnsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured DNS domains and listen address",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if !cfg.DNS.Enabled {
			fmt.Println("DNS server: disabled")
			return nil
		}

		fmt.Println("DNS server: enabled")
		fmt.Printf("  Listen:   %s\n", cfg.DNS.Listen)
		fmt.Printf("  Upstream: %s\n", cfg.DNS.Upstream)
		fmt.Println("  Domains:")
		for _, domain := range cfg.DNS.Domains {
			fmt.Printf("    - %s\n", domain)
		}
		fmt.Println()
		fmt.Println("Point your resolver at the listen address above to resolve these")
		fmt.Println("domains (and their subdomains) to the sniterm front end without")
		fmt.Println("editing /etc/hosts.")

		return nil
	},
}

func init() {
	dnsCmd.AddCommand(dnsStatusCmd)
	rootCmd.AddCommand(dnsCmd)
}
