package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig drops a config file into a temp dir and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cfg")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("setup failed: %s", err)
	}
	return path
}

func TestLoadBasics(t *testing.T) {
	path := writeConfig(t, `
# A comment line
program = zexdoc.com
default_mode = text
eol_convert = true
debug = yes

printer = printer.log
aux_input = tape.in
aux_output = tape.out
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load failed: %s", err)
	}

	if cfg.Program != "zexdoc.com" {
		t.Fatalf("program '%s'", cfg.Program)
	}
	if cfg.DefaultMode != "text" {
		t.Fatalf("default mode '%s'", cfg.DefaultMode)
	}
	if !cfg.EOLConvert || !cfg.Debug {
		t.Fatalf("flags not parsed")
	}
	if cfg.Printer != "printer.log" || cfg.AuxInput != "tape.in" || cfg.AuxOutput != "tape.out" {
		t.Fatalf("device files not parsed")
	}
}

func TestLoadMappings(t *testing.T) {
	path := writeConfig(t, `
OUT.TXT = ./out.txt text
DATA.BIN = ./data.bin binary
*.BAS = ./programs.bas
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load failed: %s", err)
	}

	if len(cfg.Mappings) != 3 {
		t.Fatalf("expected 3 mappings, got %d", len(cfg.Mappings))
	}

	m := cfg.Mappings[0]
	if m.Pattern != "OUT.TXT" || m.Path != "./out.txt" || m.Mode != "text" {
		t.Fatalf("first mapping wrong: %+v", m)
	}

	m = cfg.Mappings[1]
	if m.Mode != "binary" || m.EOLConvert {
		t.Fatalf("binary mapping should disable conversion: %+v", m)
	}

	m = cfg.Mappings[2]
	if m.Mode != "auto" {
		t.Fatalf("mapping without mode should inherit the default: %+v", m)
	}
}

func TestLoadSkipsBadLines(t *testing.T) {
	path := writeConfig(t, `
this line has no equals sign
program = good.com
`)

	var badLines []int
	cfg, err := Load(path, func(line int, msg string) {
		badLines = append(badLines, line)
	})
	if err != nil {
		t.Fatalf("load failed: %s", err)
	}

	if len(badLines) != 1 {
		t.Fatalf("expected one reported line, got %v", badLines)
	}
	if cfg.Program != "good.com" {
		t.Fatalf("parsing should continue after an error")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CPMTEST_DIR", "/tmp/cpm")

	if got := ExpandEnv("$CPMTEST_DIR/file"); got != "/tmp/cpm/file" {
		t.Fatalf("got '%s'", got)
	}
	if got := ExpandEnv("${CPMTEST_DIR}2"); got != "/tmp/cpm2" {
		t.Fatalf("got '%s'", got)
	}
	if got := ExpandEnv("$CPMTEST_UNSET/x"); got != "/x" {
		t.Fatalf("unset variables should expand empty, got '%s'", got)
	}
	if got := ExpandEnv("plain"); got != "plain" {
		t.Fatalf("got '%s'", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.cfg", nil)
	if err == nil {
		t.Fatalf("missing file should be an error")
	}
}
