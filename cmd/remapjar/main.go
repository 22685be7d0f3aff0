package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/remapjar/pkg/config"
)

const version = "0.1.0-dev"

type globalOptions struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "remapjar",
		Short:         "Remap mod archives between mapping namespaces and bundle nested jars",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultFile, "project config file (.toml or .yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newRemapCmd(opts))
	root.AddCommand(newDeobfCmd(opts))
	root.AddCommand(newNestCmd(opts))
	root.AddCommand(newPruneCmd(opts))
	root.AddCommand(newInspectCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "remapjar %s\n", version)
		},
	}
}

func newLogger(cmd *cobra.Command, opts *globalOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the project config. The default file is optional; a
// config path given explicitly must exist.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	explicit := cmd.Flags().Changed("config")
	if _, err := os.Stat(opts.configPath); err != nil {
		if os.IsNotExist(err) && !explicit {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			return config.Default(wd), nil
		}
		return nil, fmt.Errorf("config %s: %w", opts.configPath, err)
	}
	return config.Load(opts.configPath)
}

func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}
