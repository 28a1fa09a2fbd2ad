// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/authcore/internal/auth"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var outputFormats = []string{outputText, outputJSON, outputYAML}

func validateOutput(format string) error {
	if !slices.Contains(outputFormats, format) {
		return oops.Code("OUTPUT_FORMAT_INVALID").
			With("format", format).
			Errorf("output format must be one of %s", strings.Join(outputFormats, ", "))
	}
	return nil
}

// render writes v to cmd's output in format. writeText renders the text form.
func render(cmd *cobra.Command, format string, v any, writeText func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		return nil
	case outputYAML:
		// Keys follow the json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		if err := enc.Close(); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		return nil
	default:
		return writeText(w)
	}
}

// writeTable writes tab-aligned rows under header.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return nil
}

// writeFields writes one "name: value" line per pair.
func writeFields(w io.Writer, pairs ...string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(tw, "%s:\t%s\n", pairs[i], pairs[i+1])
	}
	if err := tw.Flush(); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func userFields(u *auth.UserView) []string {
	return []string{
		"id", u.ID.String(),
		"username", u.Username,
		"email", u.Email,
		"name", strings.TrimSpace(u.FirstName + " " + u.LastName),
		"roles", strings.Join(u.Roles, ","),
		"enabled", fmt.Sprint(u.Enabled),
		"created", formatTime(u.CreatedAt),
		"updated", formatTime(u.UpdatedAt),
	}
}

func writeUser(w io.Writer, u *auth.UserView) error {
	return writeFields(w, userFields(u)...)
}

func writeUsers(w io.Writer, users []auth.UserView) error {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.ID.String(), u.Username, u.Email, strings.Join(u.Roles, ","), fmt.Sprint(u.Enabled), formatTime(u.CreatedAt),
		})
	}
	return writeTable(w, []string{"ID", "USERNAME", "EMAIL", "ROLES", "ENABLED", "CREATED"}, rows)
}

// sessionView is the listed form of a refresh token. The secret is never shown.
type sessionView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newSessionViews(tokens []*auth.RefreshToken) []sessionView {
	views := make([]sessionView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, sessionView{
			ID:        t.ID.String(),
			UserID:    t.UserID.String(),
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return views
}

func writeSessions(w io.Writer, sessions []sessionView) error {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{s.ID, formatTime(s.CreatedAt), formatTime(s.ExpiresAt)})
	}
	return writeTable(w, []string{"ID", "CREATED", "EXPIRES"}, rows)
}

func writeSession(w io.Writer, s *auth.Session) error {
	return writeFields(w,
		"access_token", s.AccessToken,
		"refresh_token", s.RefreshToken,
		"expires_in", fmt.Sprintf("%ds", s.ExpiresInSeconds),
		"user", s.User.ID.String(),
		"email", s.User.Email,
		"roles", strings.Join(s.User.Roles, ","),
	)
}

func writeIntrospection(w io.Writer, i introspection) error {
	return writeFields(w,
		"sub", i.Subject,
		"email", i.Email,
		"roles", strings.Join(i.Roles, ","),
		"iss", i.Issuer,
		"iat", formatTime(i.IssuedAt),
		"exp", formatTime(i.ExpiresAt),
	)
}
