package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modoterra/ptail/pkg/manifest"
	"github.com/modoterra/ptail/pkg/manifest/presets"
)

// --- Config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the log configuration file",
}

var (
	configInitOutput string
	configInitForce  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init [preset]",
	Short: "Write a starter configuration",
	Long:  "Available presets: " + strings.Join(presets.Names(), ", ") + " (default generic)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "generic"
		if len(args) > 0 {
			name = args[0]
		}
		m, err := presets.Get(name)
		if err != nil {
			return err
		}
		path := configInitOutput
		if !configInitForce {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
		}
		if err := manifest.Save(m, path); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Generated %s with %d entries\n", path, len(m.Entries))
		for _, e := range m.Entries {
			fmt.Fprintf(out, "  %s -> %s\n", e.Pattern, e.Label)
		}
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := manifest.DefaultFile
		if len(args) > 0 {
			path = args[0]
		}

		m, err := manifest.Load(path, true)
		if err != nil {
			return err
		}

		errs := manifest.Validate(m)
		errs = append(errs, m.Compile()...)
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d entries)\n", path, len(m.Entries))
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d error(s)\n", path, len(errs))
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  • %s\n", e)
		}
		return errors.New("invalid configuration")
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", manifest.DefaultFile, "output file path")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}
