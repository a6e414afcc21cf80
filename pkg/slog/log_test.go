package slog_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Hubmakerlabs/relaycore/pkg/slog"
	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	var buf bytes.Buffer
	log, chk := slog.New(&buf)
	slog.SetLogLevel(slog.Info)
	log.D.Ln("hidden debug line")
	log.T.F("hidden %s line", "trace")
	assert.Zero(t, buf.Len())
	log.I.Ln("visible", "info", 1)
	assert.Contains(t, buf.String(), "visible info 1")
	assert.Contains(t, buf.String(), "INF")
	buf.Reset()
	assert.True(t, chk.D(errors.New("dummy error as debug")))
	assert.Zero(t, buf.Len(), "checks report the error even when not printed")
	assert.False(t, chk.E(nil))
	err := log.E.Err("format string %d '%s'", 5, "testing")
	assert.EqualError(t, err, "format string 5 'testing'")
	assert.Contains(t, buf.String(), "ERR")
}

func TestSetLogLevelString(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	for name, want := range map[string]int{
		"trace": slog.Trace,
		"d":     slog.Debug,
		"WARN":  slog.Warn,
		"off":   slog.Off,
	} {
		assert.True(t, slog.SetLogLevelString(name), name)
		assert.Equal(t, want, slog.GetLogLevel(), name)
	}
	assert.False(t, slog.SetLogLevelString("loud"))
	assert.False(t, slog.SetLogLevelString(""))
}

func TestSpew(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	var buf bytes.Buffer
	log, _ := slog.New(&buf)
	slog.SetLogLevel(slog.Trace)
	log.T.S(struct{ Name string }{"relay"})
	log.D.C(func() string { return "computed" })
	out := buf.String()
	assert.True(t, strings.Contains(out, `Name: (string) (len=5) "relay"`), out)
	assert.Contains(t, out, "computed")
}
