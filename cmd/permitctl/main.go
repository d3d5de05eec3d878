// cmd/permitctl/main.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "permitctl",
		Short:         "Foreign operator permit administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("tenant", "", "authority tenant id")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(
		MigrateCmd(),
		QuoteCmd(),
		RatesCmd(),
		InterestCmd(),
		TokenCmd(),
		OutboxCmd(),
		ExpireCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
