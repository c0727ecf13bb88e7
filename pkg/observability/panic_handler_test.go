package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer

	func() {
		defer RecoverPanic(jsonLogger(&buf), "scheduled submission")
		panic("boom")
	}()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "PANIC recovered", entry["msg"])
	assert.Equal(t, "boom", entry["panic"])
	assert.Equal(t, "scheduled submission", entry["context"])
	assert.Contains(t, entry["stack"], "panic_handler_test.go")
}

func TestRecoverPanicWithCallback(t *testing.T) {
	var buf bytes.Buffer
	called := false

	func() {
		defer RecoverPanicWithCallback(jsonLogger(&buf), "request", func() { called = true })
		panic("boom")
	}()
	assert.True(t, called)

	called = false
	buf.Reset()
	func() {
		defer RecoverPanicWithCallback(jsonLogger(&buf), "request", func() { called = true })
	}()
	assert.False(t, called, "no callback without a panic")
	assert.Empty(t, buf.String())
}
