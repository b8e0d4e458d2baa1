// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit statuses.
const (
	ExitOK = 0
	// ExitFailure is any error returned from run().
	ExitFailure = 1
	// ExitUsage is a flag or configuration error.
	ExitUsage = 2
)

// UsageError marks an error as caused by flags or configuration.
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// Fatal writes "error: err" to stderr and exits. Usage errors exit
// with ExitUsage, everything else with ExitFailure. Use it in main()
// for errors from run().
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	fmt.Fprintf(w, "error: %v\n", err)
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	return ExitFailure
}
