package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/remapjar/pkg/build"
	"github.com/odvcencio/remapjar/pkg/config"
)

type remapFlags struct {
	input         string
	output        string
	mappings      string
	mixinMappings string
	classpath     []string
	refmap        string
	nested        bool
}

func newRemapCmd(opts *globalOptions) *cobra.Command {
	flags := &remapFlags{}
	cmd := &cobra.Command{
		Use:   "remap",
		Short: "Remap an archive and finalize its descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			task := &build.Task{Config: cfg, Logger: newLogger(cmd, opts)}
			report, err := task.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "remapped %s -> %s (%d classes, %d resources)\n",
				report.Input, report.Output, report.Remap.Classes, report.Remap.Resources)
			if len(report.Bundled) > 0 {
				fmt.Fprintf(out, "bundled %d nested jar(s)\n", len(report.Bundled))
			}
			if report.RemovedArtifacts > 0 {
				fmt.Fprintf(out, "removed %d stale artifact(s)\n", report.RemovedArtifacts)
			}
			fmt.Fprintf(out, "blake2b %s\n", report.Digest)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.input, "input", "i", "", "archive to remap")
	f.StringVarP(&flags.output, "output", "o", "", "remapped archive to write")
	f.StringVarP(&flags.mappings, "mappings", "m", "", "primary Tiny mapping file")
	f.StringVar(&flags.mixinMappings, "mixin-mappings", "", "optional exported mixin mapping file")
	f.StringSliceVar(&flags.classpath, "classpath", nil, "reference archives (repeatable)")
	f.StringVar(&flags.refmap, "refmap", "", "reference map name injected into mixin configs")
	f.BoolVar(&flags.nested, "nested", false, "bundle the configured nested dependencies")
	return cmd
}

// apply overrides cfg with the flags that were set. Flag paths are relative
// to the working directory.
func (r *remapFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	set := cmd.Flags().Changed
	paths := []struct {
		flag string
		val  string
		dst  *string
	}{
		{"input", r.input, &cfg.Input},
		{"output", r.output, &cfg.Output},
		{"mappings", r.mappings, &cfg.Mappings.Primary},
		{"mixin-mappings", r.mixinMappings, &cfg.Mappings.Mixin},
	}
	for _, p := range paths {
		if !set(p.flag) {
			continue
		}
		abs, err := absPath(p.val)
		if err != nil {
			return err
		}
		*p.dst = abs
	}
	if set("classpath") {
		cfg.Classpath = cfg.Classpath[:0]
		for _, c := range r.classpath {
			abs, err := absPath(c)
			if err != nil {
				return err
			}
			cfg.Classpath = append(cfg.Classpath, abs)
		}
	}
	if set("refmap") {
		cfg.Refmap.Name = r.refmap
	}
	if set("nested") {
		cfg.Nested.Enabled = r.nested
	}
	return nil
}
