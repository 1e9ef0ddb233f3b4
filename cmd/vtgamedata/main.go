package main

import (
	"errors"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBadInput = 2
)

// exitError carries the process exit code for err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func badInput(err error) error { return &exitError{code: exitBadInput, err: err} }

// exitCode maps an error returned by the root command to a process status.
// Errors raised before the command body runs (flag parsing, argument count,
// mutually exclusive flags) are bad input.
func exitCode(err error, ran bool) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if !ran {
		return exitBadInput
	}
	return exitFailure
}

func main() {
	log.SetHandler(clihandler.Default)

	cmd, ran := newRootCmd(os.Stdout)
	if err := cmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(exitCode(err, *ran))
	}
}
