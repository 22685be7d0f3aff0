package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/remapjar/pkg/archive"
	"github.com/odvcencio/remapjar/pkg/descriptor"
	"github.com/odvcencio/remapjar/pkg/jsonobj"
	"github.com/odvcencio/remapjar/pkg/refmap"
)

func newInspectCmd() *cobra.Command {
	var entry string
	cmd := &cobra.Command{
		Use:   "inspect <jar>",
		Short: "Show the descriptor, nested jars and mixin configs of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			names, err := archive.Entries(file)
			if err != nil {
				return err
			}
			classes := 0
			for _, n := range names {
				if archive.IsClassEntry(n) {
					classes++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d classes, %d resources\n", file, classes, len(names)-classes)

			data, ok, err := archive.ReadEntry(file, entry)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "no %s\n", entry)
				return nil
			}
			manifest, err := jsonobj.Parse(data)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", entry, err)
			}
			if id, ok := manifest.GetString("id"); ok {
				fmt.Fprintf(out, "id: %s\n", id)
			}
			if v, ok := manifest.GetString("version"); ok {
				fmt.Fprintf(out, "version: %s\n", v)
			}

			jars, err := descriptor.NestedJars(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "jars: %d\n", len(jars))
			for _, j := range jars {
				fmt.Fprintf(out, "  %s\n", j)
			}

			configs, err := refmap.FindMixinConfigs(file, entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "mixin configs: %d\n", len(configs))
			for _, c := range configs {
				fmt.Fprintf(out, "  %s\n", c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entry, "entry", descriptor.DefaultEntry, "descriptor entry name")
	return cmd
}
