package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "include"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "include", "zlib.h"), []byte("header"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "libz.a"), []byte("archive"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Create(dir)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if len(m.Files) != 2 {
		t.Fatalf("Create() hashed %d files, want 2", len(m.Files))
	}
	if _, ok := m.Files["include/zlib.h"]; !ok {
		t.Error("missing slash-separated relative path include/zlib.h")
	}

	if err := m.Save(dir); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !loaded.Equal(m) {
		t.Error("loaded manifest differs from saved one")
	}

	// The manifest file itself must not be hashed on a rebuild.
	again, err := Create(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !again.SameContent(m) {
		t.Error("rebuilding after Save changed the content hash set")
	}
}

func TestParseDumpsIdempotent(t *testing.T) {
	text := "1700000000\na.txt: 0cc175b9c0f1b6a831c399e269772661\nlib/b.a: 92eb5ffee6ae2fec3ad71c777531578f\n"
	m, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if m.Dumps() != text {
		t.Errorf("Dumps() = %q, want %q", m.Dumps(), text)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "not-a-time\n", "123\nbroken-line\n"} {
		if _, err := Parse(text); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", text)
		}
	}
}

func TestEqualityLaws(t *testing.T) {
	a := &Manifest{Time: 10, Files: map[string]string{"f": "aa", "g": "bb"}}
	b := &Manifest{Time: 10, Files: map[string]string{"g": "bb", "f": "aa"}}
	c := &Manifest{Time: 10, Files: map[string]string{"f": "aa", "g": "bb"}}

	if !a.Equal(b) || !b.Equal(a) {
		t.Error("Equal is not symmetric")
	}
	if !a.Equal(b) || !b.Equal(c) || !a.Equal(c) {
		t.Error("Equal is not transitive")
	}

	d := &Manifest{Time: 11, Files: a.Files}
	if a.Equal(d) {
		t.Error("differing timestamps should not be Equal")
	}
	if !a.SameContent(d) {
		t.Error("SameContent should ignore timestamps")
	}
}

func TestNewerThan(t *testing.T) {
	older := &Manifest{Time: 10, Files: map[string]string{"f": "aa"}}
	newer := &Manifest{Time: 20, Files: map[string]string{"f": "bb"}}
	tied := &Manifest{Time: 10, Files: map[string]string{"f": "cc"}}

	if !newer.NewerThan(older) {
		t.Error("strictly greater timestamp should be newer")
	}
	if tied.NewerThan(older) {
		t.Error("equal timestamps must not count as newer even with differing content")
	}
}

func TestSummaryHashIgnoresTime(t *testing.T) {
	a := &Manifest{Time: 1, Files: map[string]string{"f": "aa"}}
	b := &Manifest{Time: 2, Files: map[string]string{"f": "aa"}}
	if a.SummaryHash() != b.SummaryHash() {
		t.Error("SummaryHash should not depend on the timestamp")
	}
	b.Files = map[string]string{"f": "ab"}
	if a.SummaryHash() == b.SummaryHash() {
		t.Error("SummaryHash should change with content")
	}
}
