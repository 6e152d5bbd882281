package main

import (
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dylibso/modsurfer/api"
	"github.com/dylibso/modsurfer/module"
	"github.com/dylibso/modsurfer/validation"
)

type diffCmd struct {
	gs          *globalState
	withContext bool
}

func (c *diffCmd) run(cmd *cobra.Command, args []string) error {
	a, err := c.resolve(cmd, args[0])
	if err != nil {
		return err
	}
	b, err := c.resolve(cmd, args[1])
	if err != nil {
		return err
	}

	color := false
	if f, ok := c.gs.stdout.(interface{ Fd() uintptr }); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	validation.Diff(a, b).Render(c.gs.stdout, c.withContext, color)
	return nil
}

// resolve treats a numeric argument as a catalog module ID and
// anything else as a local file path.
func (c *diffCmd) resolve(cmd *cobra.Command, arg string) (*module.Module, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		client := api.New(c.gs.host, api.WithLogger(c.gs.logger))
		persisted, err := client.Get(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		return persisted.Module.ToSummary(), nil
	}
	return loadModule(c.gs, arg)
}

func getCmdDiff(gs *globalState) *cobra.Command {
	diffCmd := &diffCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "diff <module1> <module2>",
		Short: "Compare two modules",
		Long:  "Compare two modules across imports, exports, size, complexity, and source language. Arguments are file paths or catalog module IDs.",
		Args:  cobra.ExactArgs(2),
		RunE:  diffCmd.run,
	}
	cmd.Flags().BoolVar(&diffCmd.withContext, "with-context", false, "include unchanged fields in the output")
	return cmd
}
