package main

import (
	stderrors "errors"
	"fmt"
	"os"

	errs "github.com/dylibso/modsurfer/errors"
)

// Exit codes: 0 success, 1 validation failures, 2 decode/load errors,
// 3 I/O or configuration errors.
const (
	exitOK         = 0
	exitFailures   = 1
	exitBadInput   = 2
	exitConfigOrIO = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return runWith(newGlobalState(), args)
}

func runWith(gs *globalState, args []string) int {
	root := newRootCommand(gs)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var silent *reportFailureError
	if stderrors.As(err, &silent) {
		// The report was already rendered; the error only carries the code.
		return exitFailures
	}

	fmt.Fprintf(gs.stderr, "Error: %v\n", err)
	switch {
	case isIO(err), errs.IsConfig(err):
		return exitConfigOrIO
	case errs.IsDecode(err), errs.IsLoad(err):
		return exitBadInput
	default:
		return exitFailures
	}
}

func isIO(err error) bool {
	for err != nil {
		if e, ok := err.(*errs.Error); ok && e.Kind == errs.KindIO {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
