package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{level: "DEBUG", want: logrus.DebugLevel},
		{level: "INFO", want: logrus.InfoLevel},
		{level: "warn", want: logrus.WarnLevel},
		{level: "ERROR", want: logrus.ErrorLevel},
		{level: "verbose", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			InitWithOutput(tt.level, &bytes.Buffer{})
			assert.Equal(t, tt.want, GetLogger().Level)
		})
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("INFO", &buf)

	Component("detector").WithFields(logrus.Fields{
		"url":        "https://github.com/acme/server",
		"confidence": 0.9,
	}).Info("MCP server detected")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "detector", line["component"])
	assert.Equal(t, "MCP server detected", line["message"])
	assert.Equal(t, "https://github.com/acme/server", line["url"])
}

func TestWithErrorAndLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("WARN", &buf)

	Info("dropped")
	Debugf("dropped %s", "too")
	assert.Zero(t, buf.Len())

	WithError(errors.New("boom")).Warn("kept")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "warning", line["level"])
}
