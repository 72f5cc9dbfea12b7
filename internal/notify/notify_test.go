package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConsolePlain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	c.Info("project opened")
	c.Warn("Network down")
	c.Error("compile failed")

	assert.Equal(t,
		"ℹ Info: project opened\n⚠ Warning: Network down\n✗ Error: compile failed\n",
		buf.String())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := Log{Logger: &logger}

	n.Warn("disk almost full")

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"notify":"warn"`)
	assert.Contains(t, buf.String(), "disk almost full")
}

func TestMultiFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewConsole(&a, true), NewConsole(&b, true)}

	m.Error("x")

	assert.Equal(t, "✗ Error: x\n", a.String())
	assert.Equal(t, a.String(), b.String())
}
