package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("warn", &buf)
	t.Cleanup(func() { Init("info") })

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
}

func TestInitAcceptsUpperCaseLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("ERROR", &buf)
	t.Cleanup(func() { Init("info") })

	Warnf("warn line")
	Errorf("error line")

	out := buf.String()
	assert.False(t, strings.Contains(out, "warn line"))
	assert.Contains(t, out, "error line")
}

func TestInitUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("chatty", &buf)
	t.Cleanup(func() { Init("info") })

	Debugf("debug line")
	Infof("info line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.Contains(t, out, "info line")
}

func TestDebugReportsCallSite(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", &buf)
	t.Cleanup(func() { Init("info") })

	Debugf("where am i")

	out := buf.String()
	assert.Contains(t, out, "logging_test.go:")
	assert.NotContains(t, out, "logging.go:")
}
