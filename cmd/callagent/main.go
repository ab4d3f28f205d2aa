// callagent generates outbound call scripts with a language model, places the
// call through a telephony provider and follows its status until it settles.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "callagent",
	Short: "Scripted outbound calls with live status tracking",
	Long: `callagent generates a call script from a short brief, speaks it to the callee
through a text-to-speech voice and tracks the call until it completes.

  callagent serve                                              Start the HTTP API
  callagent dial --to +14155550123 --name Jordan \
    --goal "Book a demo" --product "Nimbus CRM"                Place one call and follow it`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
