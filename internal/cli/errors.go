package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries the exit status of a failed command. Reported errors were already
// shown to the user through the run's output sink.
type ExitError struct {
	Code     int
	Err      error
	reported bool
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}

// exitCode prints err unless it was reported already. Errors that did not come from a
// command body are cobra usage errors.
func exitCode(err error, stderr io.Writer, useColor bool) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.reported {
			printError(stderr, exitErr.Err, useColor)
		}
		return exitErr.Code
	}
	printError(stderr, err, useColor)
	return ExitUsage
}

func printError(w io.Writer, err error, useColor bool) {
	mark := color.New(color.FgRed)
	if useColor {
		mark.EnableColor()
	} else {
		mark.DisableColor()
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", mark.Sprint("Error:"), err.Error())
}
