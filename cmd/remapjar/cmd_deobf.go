package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/remapjar/pkg/build"
)

func newDeobfCmd(opts *globalOptions) *cobra.Command {
	var (
		input    string
		mappings string
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "deobf [dependency.jar...]",
		Short: "Remap the input and its mod dependencies into <name>-remapped.jar files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			paths := []struct {
				flag string
				val  string
				dst  *string
			}{
				{"input", input, &cfg.Input},
				{"mappings", mappings, &cfg.Mappings.Primary},
				{"out-dir", outDir, &cfg.Deobf.OutputDir},
			}
			for _, p := range paths {
				if !cmd.Flags().Changed(p.flag) {
					continue
				}
				if *p.dst, err = absPath(p.val); err != nil {
					return err
				}
			}
			if len(args) > 0 {
				cfg.Deobf.Dependencies = cfg.Deobf.Dependencies[:0]
				for _, a := range args {
					abs, err := absPath(a)
					if err != nil {
						return err
					}
					cfg.Deobf.Dependencies = append(cfg.Deobf.Dependencies, abs)
				}
			}

			task := &build.Task{Config: cfg, Logger: newLogger(cmd, opts)}
			results, err := task.RemapDependencies(cmd.Context())
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Skipped() {
					fmt.Fprintf(out, "skipped %s (%s)\n", r.File, r.SkipReason)
					continue
				}
				fmt.Fprintf(out, "remapped %s -> %s\n", r.File, r.Output)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "archive to remap")
	cmd.Flags().StringVarP(&mappings, "mappings", "m", "", "primary Tiny mapping file")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory receiving the remapped archives")
	return cmd
}
