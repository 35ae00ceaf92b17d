package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.DebugLevel, parseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("ERROR"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
}

func TestHelpersWriteContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter(&buf, logrus.DebugLevel)

	WithDocument(7, "whitepaper.pdf").Info("document received")
	WithJob(3, 7).Warn("job retry")
	WithLLM("ollama", "llama3:8b", "analysis").Debug("prompt sent")
	WithError(errors.New("boom"), "cache").Error("redis down")
	Info("plain", nil)

	out := buf.String()
	assert.Contains(t, out, "document_id=7")
	assert.Contains(t, out, "filename=whitepaper.pdf")
	assert.Contains(t, out, "job_id=3")
	assert.Contains(t, out, "provider=ollama")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "stack_trace=")
	assert.Contains(t, out, "msg=plain")
}
