package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dylibso/modsurfer/checkfile"
	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/validation"
)

type generateCmd struct {
	gs     *globalState
	path   string
	output string
}

func (c *generateCmd) run(cmd *cobra.Command, _ []string) error {
	m, err := loadModule(c.gs, c.path)
	if err != nil {
		return err
	}

	cf := validation.GenerateCheckfile(m)
	out, err := checkfile.Marshal(cf)
	if err != nil {
		return err
	}

	if c.output == "-" {
		fmt.Fprint(c.gs.stdout, string(out))
		return nil
	}
	if err := afero.WriteFile(c.gs.fs, c.output, out, 0o644); err != nil {
		return errs.IO(errs.PhaseLoad, "write checkfile "+c.output, err)
	}
	fmt.Fprintf(c.gs.stdout, "wrote %s\n", c.output)
	return nil
}

func getCmdGenerate(gs *globalState) *cobra.Command {
	generateCmd := &generateCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a checkfile from a module",
		Long:  "Generate a checkfile pinning the module's current imports, exports, size, and complexity as strict expectations.",
		Args:  cobra.NoArgs,
		RunE:  generateCmd.run,
	}
	cmd.Flags().StringVarP(&generateCmd.path, "path", "p", "", "path to the wasm module")
	cmd.Flags().StringVarP(&generateCmd.output, "output", "o", "mod.yaml", "output checkfile path, or - for stdout")
	cmd.MarkFlagRequired("path")
	return cmd
}
