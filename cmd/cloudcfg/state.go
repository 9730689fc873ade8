package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/cloudcfg/pkg/compiler"
	"github.com/cuemby/cloudcfg/pkg/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the persisted state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show [namespace...]",
	Short: "Print persisted state documents",
	Long: `Print the persisted state documents as YAML. Without arguments every
namespace is printed.

Examples:
  cloudcfg state show
  cloudcfg state show ip_addresses --state-backend bolt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("state-dir")
		backend, _ := cmd.Flags().GetString("state-backend")

		store, err := storage.Open(backend, dir)
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}
		defer store.Close()

		namespaces := args
		if len(namespaces) == 0 {
			if namespaces, err = store.Namespaces(); err != nil {
				return err
			}
		}
		for _, ns := range namespaces {
			doc, err := store.Document(ns)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(map[string]interface{}{ns: doc})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
		}
		return nil
	},
}

func init() {
	defaults := compiler.DefaultConfig()
	stateShowCmd.Flags().String("state-dir", defaults.StateDir, "Directory of the persisted state")
	stateShowCmd.Flags().String("state-backend", defaults.StateBackend, "State backend (file, bolt)")
	stateCmd.AddCommand(stateShowCmd)
}
