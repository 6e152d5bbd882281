package main

import (
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dylibso/modsurfer/module"
)

// defaultHost is the catalog server the CLI talks to unless --host or
// MODSURFER_BASE_URL overrides it.
const defaultHost = "http://localhost:1739"

// globalState carries everything commands need, so they stay testable:
// an injectable filesystem, output writers, logger, and the risk
// thresholds read once at startup.
type globalState struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger

	host         string
	outputFormat string
	verbose      bool

	thresholds module.Thresholds
}

func newGlobalState() *globalState {
	host := defaultHost
	if env := os.Getenv("MODSURFER_BASE_URL"); env != "" {
		host = env
	}
	return &globalState{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: zap.NewNop(),
		host:   host,
	}
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "modsurfer",
		Short:         "Inspect and validate WebAssembly modules",
		Long:          "modsurfer inspects compiled WebAssembly modules, validates them against checkfiles, and manages a catalog of known modules.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Thresholds come from the environment exactly once, before
			// any module is loaded. Invalid settings abort here.
			thresholds, err := module.ThresholdsFromEnv()
			if err != nil {
				return err
			}
			gs.thresholds = thresholds

			if gs.verbose {
				logger, err := zap.NewDevelopment()
				if err == nil {
					gs.logger = logger
				}
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&gs.host, "host", gs.host, "catalog server base URL")
	flags.StringVar(&gs.outputFormat, "output-format", "table", "output format (table or json)")
	flags.BoolVarP(&gs.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		getCmdValidate(gs),
		getCmdGenerate(gs),
		getCmdDiff(gs),
		getCmdInspect(gs),
		getCmdCreate(gs),
		getCmdGet(gs),
		getCmdList(gs),
		getCmdSearch(gs),
		getCmdDelete(gs),
		getCmdYank(gs),
		getCmdAudit(gs),
	)
	return root
}

func (gs *globalState) jsonOutput() bool {
	return gs.outputFormat == "json"
}

// reportFailureError signals that validation failed after the report
// was already rendered; it only carries the exit code upward.
type reportFailureError struct{}

func (e *reportFailureError) Error() string { return "validation failed" }
