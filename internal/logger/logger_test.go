package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewStd(&buf, "WEB : ", false)

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Warn("grades load failed", errors.New("boom"))
	assert.Contains(t, buf.String(), "WEB : ")
	assert.Contains(t, buf.String(), "WARN grades load failed [boom]")
}

func TestStdLoggerDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewStd(&buf, "", true)
	l.Debug("visible")
	assert.Contains(t, buf.String(), "DEBUG visible")
}

func TestNewWithoutTokenIsStd(t *testing.T) {
	std := Discard()
	assert.Same(t, std, New(std, RollbarOptions{}))
}
