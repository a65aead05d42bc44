package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintResult(t *testing.T) {
	pairs := [][2]string{{"key_id", "01J"}, {"api_key", "mr_test_abc"}}

	tests := []struct {
		format string
		want   string
	}{
		{"table", "key_id:      01J\napi_key:     mr_test_abc\n"},
		{"env", "KEY_ID=01J\nAPI_KEY=mr_test_abc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			outputFmt = tt.format
			t.Cleanup(func() { outputFmt = "table" })

			var buf bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&buf)

			require.NoError(t, printResult(cmd, pairs))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrintResult_JSON(t *testing.T) {
	outputFmt = "json"
	t.Cleanup(func() { outputFmt = "table" })

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	require.NoError(t, printResult(cmd, [][2]string{{"seeded", "5"}}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]string{"seeded": "5"}, got)
}

func TestPrintResult_UnknownFormat(t *testing.T) {
	outputFmt = "yaml"
	t.Cleanup(func() { outputFmt = "table" })

	assert.Error(t, printResult(&cobra.Command{}, nil))
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"user", "create"},
		{"key", "create"},
		{"smtp", "set"},
		{"template", "seed-system"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	envFile = t.TempDir() + "/missing.env"
	t.Cleanup(func() { envFile = ".env" })
	t.Setenv("DATABASE_URL", "")

	_, err := loadConfig()
	assert.Error(t, err)
}
