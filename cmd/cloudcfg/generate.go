package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/cloudcfg/pkg/compiler"
)

const (
	envEncryptionKey         = "CLOUDCFG_ENCRYPTION_KEY"
	envPreviousEncryptionKey = "CLOUDCFG_PREVIOUS_ENCRYPTION_KEY"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compile the input model and write the artifacts",
	Long: `Compile the input model, update the persisted state and write the
resolved model documents into the output directory.

Examples:
  # Compile every model file below ./model
  cloudcfg generate -i ./model

  # Drop allocations of servers removed from the input
  cloudcfg generate -i ./model --remove-deleted-servers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return compile(cmd, false)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the input model without touching state or output",
	Long: `Run the whole compilation against an in-memory copy of the persisted
state and report every error and warning. Nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return compile(cmd, true)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, validateCmd} {
		defaults := compiler.DefaultConfig()
		cmd.Flags().StringSliceP("input", "i", nil, "Input model file or directory (repeatable)")
		cmd.Flags().String("state-dir", defaults.StateDir, "Directory of the persisted state")
		cmd.Flags().String("state-backend", defaults.StateBackend, "State backend (file, bolt)")
		cmd.Flags().Bool("remove-deleted-servers", false, "Release member ids and addresses of servers removed from the input")
		cmd.Flags().Bool("free-unused-addresses", false, "Release persisted addresses nothing uses any more")
		cmd.Flags().String("encryption-key", os.Getenv(envEncryptionKey), "Key encrypting private data (env "+envEncryptionKey+")")
		cmd.Flags().String("previous-encryption-key", os.Getenv(envPreviousEncryptionKey), "Key private data was encrypted with before (env "+envPreviousEncryptionKey+")")
		_ = cmd.MarkFlagRequired("input")
	}
	generateCmd.Flags().String("output-dir", compiler.DefaultConfig().OutputDir, "Directory receiving the artifacts")
	generateCmd.Flags().String("metrics-file", "", "Write run metrics to this file (Prometheus text format)")
}

func compile(cmd *cobra.Command, dryRun bool) error {
	cfg := compiler.DefaultConfig()
	cfg.DryRun = dryRun
	cfg.Inputs, _ = cmd.Flags().GetStringSlice("input")
	cfg.StateDir, _ = cmd.Flags().GetString("state-dir")
	cfg.StateBackend, _ = cmd.Flags().GetString("state-backend")
	cfg.RemoveDeletedServers, _ = cmd.Flags().GetBool("remove-deleted-servers")
	cfg.FreeUnusedAddresses, _ = cmd.Flags().GetBool("free-unused-addresses")
	cfg.EncryptionKey, _ = cmd.Flags().GetString("encryption-key")
	cfg.PreviousEncryptionKey, _ = cmd.Flags().GetString("previous-encryption-key")
	if dryRun {
		cfg.OutputDir = ""
	} else {
		cfg.OutputDir, _ = cmd.Flags().GetString("output-dir")
		cfg.MetricsFile, _ = cmd.Flags().GetString("metrics-file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := compiler.Run(ctx, cfg)
	if res != nil {
		fmt.Fprint(cmd.OutOrStdout(), res.Diag.Report())
	}
	if err != nil {
		return err
	}
	if res.Diag.HasErrors() {
		return errFindings
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Input model is valid (%d servers, %d warnings)\n",
			len(res.Resolved.Servers), len(res.Diag.Warnings()))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compiled %d servers into %s\n", len(res.Resolved.Servers), cfg.OutputDir)
	}
	return nil
}
