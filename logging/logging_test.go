package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("info"))
	assert.Equal(t, InfoLevel, ParseLevel("garbage"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestFormatMessageSortsFields(t *testing.T) {
	d := NewDefaultLogger()
	msg := d.formatMessage(InfoLevel, nil, "hello", Fields{"zeta": 1, "alpha": 2})
	assert.Equal(t, "[INFO] hello alpha=2 zeta=1", msg)
}

func TestFormatMessageIncludesError(t *testing.T) {
	d := NewDefaultLogger()
	msg := d.formatMessage(ErrorLevel, errors.New("boom"), "failed")
	assert.Equal(t, "[ERROR] failed error=boom", msg)
}

func TestWithFieldsMerges(t *testing.T) {
	d := NewDefaultLogger().WithFields(Fields{"component": "test"}).(*DefaultLogger)
	msg := d.formatMessage(InfoLevel, nil, "x", Fields{"n": 1})
	assert.Equal(t, "[INFO] x component=test n=1", msg)

	// Call-site fields override preset ones
	msg = d.formatMessage(InfoLevel, nil, "x", Fields{"component": "other"})
	assert.Equal(t, "[INFO] x component=other", msg)
}

func TestGlobalLoggerSwap(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	SetGlobalLogger(&NoOpLogger{})
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)

	// nil falls back to the no-op logger instead of panicking later
	SetGlobalLogger(nil)
	_, ok = GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}
