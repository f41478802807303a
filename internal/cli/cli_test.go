package cli

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	experiment "github.com/goliatone/go-experiment"
	"github.com/goliatone/go-experiment/pkg/logging"
	"github.com/rs/zerolog"
)

func TestParseDefaults(t *testing.T) {
	cfg, exit, err := Parse(nil, &bytes.Buffer{})
	if err != nil || exit {
		t.Fatalf("unexpected parse result: exit=%v err=%v", exit, err)
	}
	if cfg.Command != CommandRun {
		t.Fatalf("expected run command, got %q", cfg.Command)
	}
	if cfg.Engine != "expr" || cfg.Policy != experiment.DeadOverrideWarn || cfg.Limit != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Overrides) != 0 || len(cfg.Configs) != 0 {
		t.Fatalf("expected no updates, got %+v", cfg)
	}
}

func TestParseWithUpdates(t *testing.T) {
	args := []string{"-policy", "error", "print_config", "with", "a=10", "fast", "message=hi", "extra.yaml", "a=11", `tags=["x", "y"]`}
	cfg, _, err := Parse(args, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Command != CommandPrintConfig {
		t.Fatalf("expected print_config, got %q", cfg.Command)
	}
	if cfg.Policy != experiment.DeadOverrideError {
		t.Fatalf("expected error policy, got %q", cfg.Policy)
	}
	want := map[string]any{"a": 11, "message": "hi", "tags": []any{"x", "y"}}
	if !reflect.DeepEqual(cfg.Overrides, want) {
		t.Fatalf("overrides mismatch:\nwant: %#v\n got: %#v", want, cfg.Overrides)
	}
	if !reflect.DeepEqual(cfg.Configs, []string{"fast", "extra.yaml"}) {
		t.Fatalf("expected configs in order, got %v", cfg.Configs)
	}
	if !isConfigFile(cfg.Configs[1]) || isConfigFile(cfg.Configs[0]) {
		t.Fatalf("expected only extra.yaml to be a file")
	}
}

func TestParseCommandSpellings(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want Command
	}{
		{[]string{"run"}, CommandRun},
		{[]string{"print-config"}, CommandPrintConfig},
		{[]string{"-print-config"}, CommandPrintConfig},
		{[]string{"runs"}, CommandRuns},
	} {
		cfg, _, err := Parse(tc.args, &bytes.Buffer{})
		if err != nil {
			t.Fatalf("parse %v: %v", tc.args, err)
		}
		if cfg.Command != tc.want {
			t.Fatalf("parse %v: expected %q, got %q", tc.args, tc.want, cfg.Command)
		}
	}
}

func TestParseLogging(t *testing.T) {
	cfg, _, err := Parse([]string{"-log-level", "debug", "-log-format", "json"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != zerolog.DebugLevel || cfg.Logging.Format != logging.FormatJSON {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestParseHelp(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"-h"}, out)
	if err != nil || !exit || cfg != nil {
		t.Fatalf("expected clean exit on help, got cfg=%v exit=%v err=%v", cfg, exit, err)
	}
	if !bytes.Contains(out.Bytes(), []byte("Usage:")) {
		t.Fatalf("expected usage text, got %q", out.String())
	}
}

func TestParseErrors(t *testing.T) {
	cases := [][]string{
		{"-engine", "lua"},
		{"-policy", "loud"},
		{"-runstore", "redis"},
		{"-log-level", "chatty"},
		{"-log-format", "xml"},
		{"-unknown"},
		{"a=1"},
		{"runs", "with", "a=1"},
		{"with", ".bad=1"},
	}
	for _, args := range cases {
		_, _, err := Parse(args, &bytes.Buffer{})
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("parse %v: expected ExitError, got %v", args, err)
		}
		if exitErr.Code != 2 {
			t.Fatalf("parse %v: expected exit code 2, got %d", args, exitErr.Code)
		}
	}
}
