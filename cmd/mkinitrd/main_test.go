package main

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

// skelTxtar describes a tiny initrd skeleton directory as one readable
// block — the shape the Go toolchain itself uses for multi-file test
// fixtures. It holds only text content: txtar is explicitly a non-goal
// for binary data (see internal/testelf's doc comment for how this repo
// builds binary fixtures instead), but addfiles never inspects file
// contents, so plain text files exercise it fully.
const skelTxtar = `
-- bin/init --
not real machine code, just a fixture
-- etc/motd --
welcome
`

func materialize(t *testing.T, dir string, ar *txtar.Archive) {
	t.Helper()
	for _, f := range ar.Files {
		full := filepath.Join(dir, f.Name)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, f.Data, 0644); err != nil {
			t.Fatalf("WriteFile %s: %v", f.Name, err)
		}
	}
}

func TestAddfilesWalksSkeletonIntoTar(t *testing.T) {
	dir := t.TempDir()
	materialize(t, dir, txtar.Parse([]byte(skelTxtar)))

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := addfiles(tw, dir); err != nil {
		t.Fatalf("addfiles: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tw.Close: %v", err)
	}

	got := map[string]string{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading %s: %v", hdr.Name, err)
		}
		got[hdr.Name] = string(data)
	}

	want := map[string]string{
		"bin/init": "not real machine code, just a fixture\n",
		"etc/motd": "welcome\n",
	}
	for name, data := range want {
		if got[name] != data {
			t.Fatalf("tar entry %s = %q, want %q", name, got[name], data)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("tar has %d entries, want %d: %v", len(got), len(want), got)
	}
}
