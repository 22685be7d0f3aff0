package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/remapjar/pkg/publish"
)

func newPruneCmd(opts *globalOptions) *cobra.Command {
	var (
		registry       string
		outputs        []string
		excludeDefault bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop registered artifacts backed by the given output files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if registry == "" || len(outputs) == 0 {
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				if registry == "" {
					registry = cfg.Publish.Registry
				}
				if len(outputs) == 0 && cfg.Output != "" {
					outputs = []string{cfg.Output}
				}
				if !cmd.Flags().Changed("exclude-default") {
					excludeDefault = cfg.Publish.ExcludeDefault
				}
			}
			if registry == "" {
				return fmt.Errorf("prune: no registry configured")
			}

			reg, err := publish.Load(registry)
			if err != nil {
				return err
			}
			removed := reg.RemoveArtifacts(outputs, excludeDefault)
			out := cmd.OutOrStdout()
			if removed == 0 {
				fmt.Fprintln(out, "nothing to prune")
				return nil
			}
			if err := reg.Save(registry); err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %d artifact(s) from %s\n", removed, registry)
			return nil
		},
	}
	cmd.Flags().StringVar(&registry, "registry", "", "artifact registry file")
	cmd.Flags().StringSliceVar(&outputs, "output", nil, "task output file (repeatable)")
	cmd.Flags().BoolVar(&excludeDefault, "exclude-default", false, "leave the default configuration alone")
	return cmd
}
