// Command sniterm runs the SNI-terminating TLS front end and its
// supporting tooling (CA management, certificate inspection, local DNS).
package main

import "github.com/sniterm/sniterm/cmd/sniterm/cmd"

func main() {
	cmd.Execute()
}
