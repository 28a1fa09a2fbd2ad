// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/store"
	"github.com/holomush/authcore/pkg/errutil"
)

// fakeMigrator records the operations run against it.
type fakeMigrator struct {
	calls  []string
	steps  []int
	forced int
	status *store.MigrationStatus
	err    error
	closed bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.err
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return f.err
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = append(f.steps, n)
	return f.err
}

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = version
	return f.err
}

func (f *fakeMigrator) Status() (*store.MigrationStatus, error) {
	f.calls = append(f.calls, "status")
	return f.status, f.err
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func newMigrateHarness(t *testing.T) (*harness, *fakeMigrator, *string) {
	t.Helper()
	h := newHarness(t)
	h.env["DATABASE_URL"] = "postgres://localhost/authcore"
	fake := &fakeMigrator{}
	var gotURL string
	h.deps.NewMigrator = func(url string) (Migrator, error) {
		gotURL = url
		return fake, nil
	}
	return h, fake, &gotURL
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("migrate", "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrate_Commands(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantSteps []int
		wantOut   string
	}{
		{"up", []string{"migrate", "up"}, []string{"up"}, nil, "Migrations applied"},
		{"up steps", []string{"migrate", "up", "--steps", "1"}, []string{"steps"}, []int{1}, "Migrations applied"},
		{"down one", []string{"migrate", "down"}, []string{"steps"}, []int{-1}, "Migrations rolled back"},
		{"down steps", []string{"migrate", "down", "--steps", "2"}, []string{"steps"}, []int{-2}, "Migrations rolled back"},
		{"down all", []string{"migrate", "down", "--all"}, []string{"down"}, nil, "Migrations rolled back"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake, url := newMigrateHarness(t)

			out, err := h.run(tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, fake.calls)
			assert.Equal(t, tt.wantSteps, fake.steps)
			assert.Contains(t, out, tt.wantOut)
			assert.Equal(t, "postgres://localhost/authcore", *url)
			assert.True(t, fake.closed)
		})
	}
}

func TestMigrate_DownFlagConflicts(t *testing.T) {
	h, fake, _ := newMigrateHarness(t)

	_, err := h.run("migrate", "down", "--all", "--steps", "2")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "FLAGS_CONFLICT")

	_, err = h.run("migrate", "down", "--steps", "0")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_STEPS")
	assert.Empty(t, fake.calls)
}

func TestMigrate_Force(t *testing.T) {
	h, fake, _ := newMigrateHarness(t)

	out, err := h.run("migrate", "force", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.forced)
	assert.Contains(t, out, "Schema version forced to 2")

	_, err = h.run("migrate", "force", "two")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrate_Status(t *testing.T) {
	h, fake, _ := newMigrateHarness(t)
	fake.status = &store.MigrationStatus{
		Current: 1,
		Applied: []store.Migration{{Version: 1, Name: "create_users"}},
		Pending: []store.Migration{{Version: 2, Name: "create_refresh_tokens"}},
	}

	out, err := h.run("migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "clean")
	assert.Regexp(t, `1\s+create_users\s+applied`, out)
	assert.Regexp(t, `2\s+create_refresh_tokens\s+pending`, out)

	var st store.MigrationStatus
	h.runJSON(t, &st, "migrate", "status")
	assert.Equal(t, *fake.status, st)
}

func TestMigrate_PropagatesFailure(t *testing.T) {
	h, fake, _ := newMigrateHarness(t)
	fake.err = errors.New("dirty database")

	_, err := h.run("migrate", "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	assert.True(t, fake.closed)
}
