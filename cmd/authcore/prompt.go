// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// readLine reads up to the next newline one byte at a time so that
// successive prompts on a pipe do not lose buffered input.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			if sb.Len() == 0 {
				return "", oops.Code("PASSWORD_READ_FAILED").Errorf("no input")
			}
			break
		}
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

// promptNewPassword asks for a password twice and requires both to match.
func promptNewPassword(cmd *cobra.Command, deps *Deps) (string, error) {
	password, err := deps.ReadPassword(cmd, "Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := deps.ReadPassword(cmd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	return password, nil
}
