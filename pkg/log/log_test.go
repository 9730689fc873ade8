package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	logger := WithComponent("scheduler")
	logger.Info().Str("group", "cp1/c1").Msg("group allocated")

	entry := decode(t, &buf)
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "cp1/c1", entry["group"])
	assert.Equal(t, "group allocated", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})

	Logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	Logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestScopedLoggersKeepComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	defer Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}})

	stage := WithComponent("network")
	scoped := WithServerID(WithControlPlane(stage, "cp1"), "ctl1")
	scoped.Debug().Msg("attached network")

	entry := decode(t, &buf)
	assert.Equal(t, "network", entry["component"])
	assert.Equal(t, "cp1", entry["control_plane"])
	assert.Equal(t, "ctl1", entry["server_id"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: DebugLevel},
		{in: "warn", want: WarnLevel},
		{in: "error", want: ErrorLevel},
		{in: "WARN", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
