// Package cmd provides the CLI commands for sniterm.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sniterm",
	Short: "TLS front-end that terminates connections by inspecting SNI",
	Long: `sniterm is a TLS front-end that terminates connections for multiple
domains on a single listening socket, selecting per-connection certificate
material by inspecting the SNI field of the unencrypted TLS ClientHello.

  - On-demand leaf certificates signed by a local CA, cached per hostname
  - Docker integration: hostnames are discovered from container labels
  - Built-in DNS server for resolving local domains without /etc/hosts

Start by running 'sniterm ca generate' to create the signing CA,
then 'sniterm serve' to run the front end.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sniterm version {{.Version}}\ncommit: %s\nbuilt: %s\n", Commit, BuildDate))
}
