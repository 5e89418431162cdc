package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf, JSON: true})

	logger.Debugf("debug %d", 1)
	logger.Infof("info %d", 2)
	logger.Warnf("warn %d", 3)
	logger.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Errorf("enabled levels missing: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf, JSON: true})

	logger.Infof("hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, `"message":"hello world"`) {
		t.Errorf("not structured JSON: %q", out)
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("level field missing: %q", out)
	}
}

func TestPrintfIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf, JSON: true})

	logger.Printf("via printf")
	if !strings.Contains(buf.String(), `"level":"info"`) {
		t.Errorf("Printf should log at info: %q", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf, JSON: true})

	logger.WithComponent("dispatcher").Infof("started")
	if !strings.Contains(buf.String(), `"component":"dispatcher"`) {
		t.Errorf("component field missing: %q", buf.String())
	}
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf, JSON: true})
	SetDefault(logger)

	if Default() != logger {
		t.Error("SetDefault did not replace the default logger")
	}
	Info("through default")
	if !strings.Contains(buf.String(), "through default") {
		t.Errorf("default logger not used: %q", buf.String())
	}
}
