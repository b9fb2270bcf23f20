// Command photodedupe scans photo and video libraries for exact and
// near-duplicate media and groups them for review (§6).
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// exitCode classifies a command failure per §6: 0 success, 1 user
// error, 2 I/O error, 3 cancelled, 4 internal.
type exitCode int

const (
	exitSuccess    exitCode = 0
	exitUserError  exitCode = 1
	exitIOError    exitCode = 2
	exitCancelled  exitCode = 3
	exitInternal   exitCode = 4
)

// cliError pairs an error with the exit code it should produce.
type cliError struct {
	code exitCode
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &cliError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func ioError(err error) error {
	return &cliError{code: exitIOError, err: err}
}

func internalError(err error) error {
	return &cliError{code: exitInternal, err: err}
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(int(codeFor(err)))
	}
}

func codeFor(err error) exitCode {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitUserError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "photodedupe",
		Short:         "Find and group duplicate photos and videos",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newScanCmd())
	return root
}
