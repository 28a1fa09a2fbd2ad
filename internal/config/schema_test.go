// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, SchemaID, schema["$id"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"store", "log", "database", "token", "password", "metrics"} {
		assert.Contains(t, props, key)
	}

	token := props["token"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "string", token["access_ttl"].(map[string]any)["type"], "durations are strings")
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantCode string
	}{
		{"empty", "", ""},
		{"full", `
store: postgres
log: {level: debug, format: text}
database: {url: "postgres://db/auth", max_conns: 4, connect_timeout: 3s, connect_retries: 2}
token: {issuer: me, access_ttl: 10m, refresh_ttl: 720h}
password: {min_length: 10, max_length: 64, argon2_time: 2, argon2_memory: 65536, argon2_threads: 2}
metrics: {addr: ":9100"}
`, ""},
		{"unknown key", "stroe: memory\n", "CONFIG_SCHEMA_INVALID"},
		{"bad enum", "store: redis\n", "CONFIG_SCHEMA_INVALID"},
		{"bad duration", "token: {access_ttl: soon}\n", "CONFIG_SCHEMA_INVALID"},
		{"wrong type", "database: {max_conns: many}\n", "CONFIG_SCHEMA_INVALID"},
		{"not yaml", "log: [", "CONFIG_FILE_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument([]byte(tt.doc))
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}
