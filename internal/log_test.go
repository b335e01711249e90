package internal

import (
	"bytes"
	"strings"
	"testing"
)

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&buf, INFO)
	child := parent.With("export").With("a1b2")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at INFO: %q", buf.String())
	}

	parent.SetLevel(DEBUG)
	child.Debug("shown")
	if got := buf.String(); !strings.Contains(got, "[DEBUG] [export] [a1b2] shown") {
		t.Errorf("child did not follow parent level: %q", got)
	}

	buf.Reset()
	child.SetLevel(SILENT)
	parent.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("parent wrote after child silenced the shared output: %q", buf.String())
	}
}
