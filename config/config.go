// Package config parses the emulator configuration-file format.
//
// The format is line-oriented "key = value" with "#" comments.  Values
// may reference environment variables as $VAR or ${VAR}.  Any key that
// is not a recognized directive declares a file mapping from a CP/M
// name pattern to a host path, optionally suffixed with an explicit
// "text" or "binary" mode.
//
// A malformed line is reported and skipped; parsing always continues.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Mapping is one declared file mapping.
type Mapping struct {
	// Pattern is the CP/M-side pattern: an exact name, "*", or
	// "*.EXT".
	Pattern string

	// Path is the host path the pattern maps to.
	Path string

	// Mode is "auto", "text" or "binary".
	Mode string

	// EOLConvert enables line-ending conversion for text files.
	EOLConvert bool
}

// Config is the parsed configuration.
type Config struct {
	// Program is the CP/M program to load.
	Program string

	// Chdir, when set, is a directory to change into before
	// anything else happens.
	Chdir string

	// DefaultMode is "auto", "text" or "binary".
	DefaultMode string

	// EOLConvert is the default line-ending conversion setting.
	EOLConvert bool

	// Debug enables global debug logging.
	Debug bool

	// Printer, AuxInput and AuxOutput name host files backing the
	// LST:, RDR: and PUN: devices.
	Printer   string
	AuxInput  string
	AuxOutput string

	// Mappings holds the file mappings, in declaration order.
	Mappings []Mapping
}

// New returns a configuration with the defaults applied.
func New() *Config {
	return &Config{
		DefaultMode: "auto",
		EOLConvert:  true,
	}
}

// ExpandEnv expands $VAR and ${VAR} references from the environment.
// Unknown variables expand to the empty string.
func ExpandEnv(s string) string {
	var out strings.Builder
	i := 0

	for i < len(s) {
		if s[i] != '$' {
			out.WriteByte(s[i])
			i++
			continue
		}
		i++

		var name string
		if i < len(s) && s[i] == '{' {
			i++
			for i < len(s) && s[i] != '}' {
				name += string(s[i])
				i++
			}
			if i < len(s) {
				i++
			}
		} else {
			for i < len(s) && (isAlnum(s[i]) || s[i] == '_') {
				name += string(s[i])
				i++
			}
		}

		out.WriteString(os.Getenv(name))
	}

	return out.String()
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isTrue(v string) bool {
	return v == "true" || v == "1" || v == "yes"
}

// Load reads and parses the named configuration file.  Per-line errors
// are reported through report and the offending line is skipped.
func Load(path string, report func(line int, msg string)) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file %s: %s", path, err)
	}
	defer fh.Close()

	if report == nil {
		report = func(line int, msg string) {
			fmt.Fprintf(os.Stderr, "Config line %d: %s\n", line, msg)
		}
	}

	cfg := New()
	scanner := bufio.NewScanner(fh)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Remove comments.
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			report(lineNum, "invalid format (missing =)")
			continue
		}

		key := strings.TrimSpace(line[:eq])
		value := ExpandEnv(strings.TrimSpace(line[eq+1:]))

		switch key {
		case "program":
			cfg.Program = value
		case "cd", "chdir":
			cfg.Chdir = value
		case "default_mode":
			switch value {
			case "text", "binary":
				cfg.DefaultMode = value
			default:
				cfg.DefaultMode = "auto"
			}
		case "debug":
			cfg.Debug = isTrue(value)
		case "eol_convert":
			cfg.EOLConvert = isTrue(value)
		case "printer":
			cfg.Printer = value
		case "aux_input":
			cfg.AuxInput = value
		case "aux_output":
			cfg.AuxOutput = value
		default:
			// A file-mapping declaration, with an optional
			// trailing mode.
			mapping := Mapping{
				Pattern:    key,
				Path:       value,
				Mode:       cfg.DefaultMode,
				EOLConvert: cfg.EOLConvert,
			}

			if space := strings.LastIndexByte(value, ' '); space >= 0 {
				switch value[space+1:] {
				case "text":
					mapping.Mode = "text"
					mapping.Path = strings.TrimSpace(value[:space])
				case "binary":
					mapping.Mode = "binary"
					mapping.Path = strings.TrimSpace(value[:space])
					mapping.EOLConvert = false
				}
			}

			cfg.Mappings = append(cfg.Mappings, mapping)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %s", path, err)
	}

	return cfg, nil
}
