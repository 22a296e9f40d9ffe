package main

import (
	"testing"
)

func TestParseOptions(t *testing.T) {
	opts, rest, err := parseOptions([]string{
		"--8080",
		"--progress=50",
		"--save-memory=dump.bin",
		"--save-range=DC00-FFFF",
		"--int-cycles=50000",
		"--int-rst=3",
		"prog.com", "a", "b",
	})
	if err != nil {
		t.Fatalf("parse failed: %s", err)
	}

	if !opts.mode8080 {
		t.Fatalf("8080 mode not set")
	}
	if opts.progress != 50*1000000 {
		t.Fatalf("progress %d", opts.progress)
	}
	if opts.saveFile != "dump.bin" {
		t.Fatalf("save file '%s'", opts.saveFile)
	}
	if opts.saveStart != 0xDC00 || opts.saveEnd != 0xFFFF {
		t.Fatalf("save range %04X-%04X", opts.saveStart, opts.saveEnd)
	}
	if opts.intCycles != 50000 || opts.intRST != 3 {
		t.Fatalf("interrupt options %d %d", opts.intCycles, opts.intRST)
	}

	if len(rest) != 3 || rest[0] != "prog.com" {
		t.Fatalf("rest %v", rest)
	}
}

func TestParseOptionsDefaults(t *testing.T) {
	opts, rest, err := parseOptions([]string{"prog.com"})
	if err != nil {
		t.Fatalf("parse failed: %s", err)
	}
	if opts.mode8080 {
		t.Fatalf("default should be Z80")
	}
	if opts.intRST != 7 {
		t.Fatalf("default RST should be 7")
	}
	if len(rest) != 1 {
		t.Fatalf("rest %v", rest)
	}
}

func TestParseOptionsBareProgress(t *testing.T) {
	opts, _, err := parseOptions([]string{"--progress", "prog.com"})
	if err != nil {
		t.Fatalf("parse failed: %s", err)
	}
	if opts.progress != 100*1000000 {
		t.Fatalf("bare --progress should default to 100M, got %d", opts.progress)
	}
}

func TestParseOptionsBadValues(t *testing.T) {
	if _, _, err := parseOptions([]string{"--progress=abc", "p.com"}); err == nil {
		t.Fatalf("bad progress value should fail")
	}
	if _, _, err := parseOptions([]string{"--save-range=zz", "p.com"}); err == nil {
		t.Fatalf("bad save range should fail")
	}
}
