package persistence_test

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/perflab/linksweep/internal/persistence"
)

// A struct that can be marshalled to JSON.
type MarshallableStruct struct {
	Test string
}

func TestWriteDataFile(t *testing.T) {
	datadir := t.TempDir()
	record := MarshallableStruct{Test: "foo"}

	path, err := persistence.WriteDataFile(datadir, "linksweep", "sweep", "fake-run-id", record)
	if err != nil {
		t.Fatalf("cannot write test datafile: %v", err)
	}

	// Check the generated path.
	prefix := fmt.Sprintf("%s/linksweep/%s/linksweep-sweep-", datadir,
		time.Now().Format("2006/01/02"))
	if !strings.HasPrefix(path, prefix) ||
		!strings.HasSuffix(path, "fake-run-id.json.gz") {
		t.Errorf("invalid output path: %s", path)
	}

	// Check the file contents through the gzip layer.
	fp, err := os.Open(path)
	if err != nil {
		t.Fatalf("error while opening data file: %v", err)
	}
	defer fp.Close()
	gz, err := gzip.NewReader(fp)
	if err != nil {
		t.Fatalf("error while opening gzip stream: %v", err)
	}
	content, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("error while reading file content: %v", err)
	}
	if string(content) != `{"Test":"foo"}` {
		t.Errorf("unexpected file content: %s", string(content))
	}
}

func TestNew_BadDir(t *testing.T) {
	if _, err := persistence.New("/proc/does-not-exist", "linksweep", "sweep", "id"); err == nil {
		t.Error("expected an error for an unwritable datadir")
	}
}
