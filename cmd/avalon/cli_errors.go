// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/jllopis/avalon/pkg/errors"
)

// CLIError adds a hint for the person at the terminal to an AvalonError.
type CLIError struct {
	*errors.AvalonError
	Hint string
}

func (e *CLIError) Error() string {
	msg := e.AvalonError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

func (e *CLIError) Unwrap() error { return e.AvalonError }

func wrapConfigError(err error) error {
	var ae *errors.AvalonError
	if !stderrors.As(err, &ae) {
		ae = errors.New(errors.CodeConfiguration, "invalid configuration", err)
	}
	return &CLIError{AvalonError: ae, Hint: "check --config, --set and AVALON_* variables"}
}

func wrapStorageError(err error, path string) error {
	var ae *errors.AvalonError
	if !stderrors.As(err, &ae) {
		ae = errors.New(errors.CodeStorage, "storage failed", err)
	}
	return &CLIError{AvalonError: ae, Hint: fmt.Sprintf("is %q an avalon match database? set history.sqlite_path or --db", path)}
}

// printError writes err to stderr as text or as one JSON object.
func printError(err error, asJSON bool) {
	code := string(errors.CodeInternal)
	msg := err.Error()
	hint := ""
	var ce *CLIError
	var ae *errors.AvalonError
	switch {
	case stderrors.As(err, &ce):
		code, msg, hint = string(ce.Code), ce.Message, ce.Hint
	case stderrors.As(err, &ae):
		code, msg = string(ae.Code), ae.Message
	}

	if asJSON {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]any{
			"error": map[string]string{"code": code, "message": msg, "hint": hint},
		})
		return
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", code, msg)
	if hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", hint)
	}
}
