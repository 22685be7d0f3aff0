package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/descriptor"
	"github.com/odvcencio/remapjar/pkg/nested"
)

func newNestCmd(opts *globalOptions) *cobra.Command {
	var (
		coord   descriptor.Coordinate
		staging string
		entry   string
	)
	cmd := &cobra.Command{
		Use:   "nest <jar>",
		Short: "Give a dependency archive a descriptor so it can be bundled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			if coord.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if !archive.Exists(file) {
				return fmt.Errorf("nest: %s: %w", file, os.ErrNotExist)
			}
			matcher, err := descriptor.NewMatcher([]descriptor.ResolvedArtifact{{Coordinate: coord, File: file}})
			if err != nil {
				return err
			}
			if staging == "" {
				staging = filepath.Join(os.TempDir(), "remapjar", "modprocessing")
			}
			pre, err := nested.New(nested.Options{
				Enabled:         true,
				Matcher:         matcher,
				StagingDir:      staging,
				DescriptorEntry: entry,
				Logger:          newLogger(cmd, opts),
			})
			if err != nil {
				return err
			}
			defer pre.Cleanup()

			had, err := archive.ContainsEntry(file, entry)
			if err != nil {
				return err
			}
			if _, err := pre.Process(cmd.Context(), file); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if had {
				fmt.Fprintf(out, "%s already has %s\n", file, entry)
				return nil
			}
			fmt.Fprintf(out, "added %s to %s (id %s)\n", entry, file, coord.ModID())
			return nil
		},
	}
	cmd.Flags().StringVar(&coord.Group, "group", "", "dependency group")
	cmd.Flags().StringVar(&coord.Name, "name", "", "dependency name")
	cmd.Flags().StringVar(&coord.Version, "version", "", "dependency version")
	cmd.Flags().StringVar(&staging, "staging", "", "scratch directory for patched copies")
	cmd.Flags().StringVar(&entry, "entry", descriptor.DefaultEntry, "descriptor entry name")
	return cmd
}
