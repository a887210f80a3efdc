package dag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeWrite_HeadPointer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "op_head")

	first, err := ComputeID([]byte("operation 1"))
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	second, err := ComputeID([]byte("operation 2"))
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}

	for _, id := range []ID{first, second} {
		if err := SafeWrite(path, []byte(id.String()+"\n"), 0644); err != nil {
			t.Fatalf("SafeWrite %s: %v", id.Short(), err)
		}
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	parsed, err := ParseString(strings.TrimSpace(string(got)))
	if err != nil {
		t.Fatalf("ParseString(%q): %v", got, err)
	}
	if parsed != second {
		t.Fatalf("head = %s, want %s", parsed.Short(), second.Short())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Fatalf("perm = %o, want 0644", info.Mode().Perm())
	}
}

func TestSafeWrite_FailureKeepsPreviousContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")
	if err := SafeWrite(path, []byte(`{"format_version":1}`), 0644); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}

	if err := SafeWrite(filepath.Join(dir, "missing", "meta.json"), []byte("{}"), 0644); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "meta.json" {
			t.Fatalf("unexpected file left behind: %s", e.Name())
		}
	}
	got, _ := os.ReadFile(path)
	if string(got) != `{"format_version":1}` {
		t.Fatalf("meta.json changed: %q", got)
	}
}

func TestSafeWrite_ObjectFileOnly(t *testing.T) {
	objects := filepath.Join(t.TempDir(), "objects")
	if err := os.MkdirAll(objects, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	data := []byte{0x01, 0x02}
	id, err := ComputeID(data)
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	if err := SafeWrite(filepath.Join(objects, id.Filename()), data, 0444); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}

	entries, _ := os.ReadDir(objects)
	if len(entries) != 1 || entries[0].Name() != id.Filename() {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("unexpected files in objects dir: %v", names)
	}
}

func TestWriteIfAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	wrote, err := WriteIfAbsent(path, []byte("first"), 0644)
	if err != nil {
		t.Fatalf("WriteIfAbsent 1: %v", err)
	}
	if !wrote {
		t.Fatal("first WriteIfAbsent should write")
	}
	wrote, err = WriteIfAbsent(path, []byte("second"), 0644)
	if err != nil {
		t.Fatalf("WriteIfAbsent 2: %v", err)
	}
	if wrote {
		t.Fatal("second WriteIfAbsent should not write")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("got %q, want %q", got, "first")
	}
}
