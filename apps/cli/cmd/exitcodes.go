package cmd

import (
	"errors"
	"net"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
)

// Exit codes for hitwire CLI
const (
	// ExitSuccess indicates the exchange completed and every check passed
	ExitSuccess = 0

	// ExitCheckFailure indicates an expectation, schema or threshold failed
	ExitCheckFailure = 1

	// ExitStatusError indicates the server answered with a status >= 400
	ExitStatusError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit status"
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCodeFor maps an exchange error to an exit code
func exitCodeFor(err error) int {
	var (
		statusErr *webclient.StatusError
		reqErr    *webclient.RequestError
		respErr   *webclient.ResponseError
		netErr    net.Error
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &statusErr):
		return ExitStatusError
	case errors.As(err, &reqErr) && reqErr.Op == "url":
		return ExitUsageError
	case errors.As(err, &netErr), errors.As(err, &reqErr), errors.As(err, &respErr):
		return ExitNetworkError
	}
	return ExitCheckFailure
}
