package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	sessionArg string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "The configuration file to read.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging/instrumentation.")
	rootCmd.PersistentFlags().StringVarP(&sessionArg, "session", "s", "", "The session to use, defaults to the last session created by login.")
}

var rootCmd = &cobra.Command{
	Use:   "fleetassist",
	Short: "fleetassist answers questions about lease contracts on the fleet portal.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
