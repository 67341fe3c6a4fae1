package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	backend string
	verbose bool
}

func newRootCmd() *cobra.Command {
	var g globalOptions
	cmd := &cobra.Command{
		Use:           "eam-transfer",
		Short:         "Bulk import, export and delete for the EA catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.backend, "backend", "", "Store backend: graphql, neo4j or memory (default from STORE_BACKEND)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log progress at debug level")

	cmd.AddCommand(newValidateCmd(&g))
	cmd.AddCommand(newImportCmd(&g))
	cmd.AddCommand(newExportCmd(&g))
	cmd.AddCommand(newDeleteCmd(&g))
	cmd.AddCommand(newServeCmd(&g))
	return cmd
}

// Execute runs the CLI. An interrupt stops an import at the next row
// boundary; the partial summary is still printed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
