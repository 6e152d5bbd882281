package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dylibso/modsurfer/checkfile"
	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/module"
	"github.com/dylibso/modsurfer/validation"
)

type validateCmd struct {
	gs        *globalState
	path      string
	checkPath string
}

func (c *validateCmd) run(cmd *cobra.Command, _ []string) error {
	report, _, err := runValidation(cmd, c.gs, c.path, c.checkPath)
	if err != nil {
		return err
	}

	if c.gs.jsonOutput() {
		out, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.gs.stdout, string(out))
	} else if len(report.Outcomes) > 0 {
		fmt.Fprintln(c.gs.stdout, report.Table(true))
	}

	if report.HasFailures() {
		return &reportFailureError{}
	}
	return nil
}

// runValidation is the decode → load → validate pipeline shared by
// validate and create.
func runValidation(cmd *cobra.Command, gs *globalState, modulePath, checkPath string) (*validation.Report, *module.Module, error) {
	m, err := loadModule(gs, modulePath)
	if err != nil {
		return nil, nil, err
	}

	loader := checkfile.NewLoader()
	loader.FS = gs.fs
	policy, err := loader.Load(cmd.Context(), checkPath)
	if err != nil {
		return nil, nil, err
	}

	gs.logger.Debug("validating module",
		zap.String("module", modulePath),
		zap.String("checkfile", checkPath),
		zap.String("hash", m.Hash))

	return validation.Validate(m, policy), m, nil
}

func loadModule(gs *globalState, path string) (*module.Module, error) {
	data, err := afero.ReadFile(gs.fs, path)
	if err != nil {
		return nil, errs.IO(errs.PhaseDecode, "read module "+path, err)
	}
	return module.Parse(data, gs.thresholds)
}

func getCmdValidate(gs *globalState) *cobra.Command {
	validateCmd := &validateCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a module against a checkfile",
		Long:  "Validate a wasm module on disk against a checkfile. Exits 0 when every check passes, 1 when any check fails.",
		Args:  cobra.NoArgs,
		RunE:  validateCmd.run,
	}
	cmd.Flags().StringVarP(&validateCmd.path, "path", "p", "", "path to the wasm module")
	cmd.Flags().StringVarP(&validateCmd.checkPath, "check", "c", "mod.yaml", "path to the checkfile")
	cmd.MarkFlagRequired("path")
	return cmd
}
