package consoleout

import (
	"strings"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	for _, name := range []string{"ansi", "null"} {
		d, err := New(name)
		if err != nil {
			t.Fatalf("driver %s not registered: %s", name, err)
		}
		if d.GetName() != name {
			t.Fatalf("driver name mismatch")
		}
	}

	if _, err := New("bogus"); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestAnsiWritesThrough(t *testing.T) {
	co, err := New("ansi")
	if err != nil {
		t.Fatalf("driver missing: %s", err)
	}

	var buf strings.Builder
	co.GetDriver().SetWriter(&buf)

	co.PutCharacter('H')
	co.PutCharacter('i')
	if buf.String() != "Hi" {
		t.Fatalf("got '%s'", buf.String())
	}
}

func TestNullRecords(t *testing.T) {
	co, err := New("null")
	if err != nil {
		t.Fatalf("driver missing: %s", err)
	}

	co.WriteString("hello")

	rec, ok := co.GetDriver().(ConsoleRecorder)
	if !ok {
		t.Fatalf("null driver should implement the recorder")
	}
	if rec.GetOutput() != "hello" {
		t.Fatalf("recorded '%s'", rec.GetOutput())
	}

	rec.Reset()
	if rec.GetOutput() != "" {
		t.Fatalf("reset failed")
	}
}
