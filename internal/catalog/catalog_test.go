package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"modyn/pkg/types"
)

func touch(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestScanner_DetectsBackends(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.GGUF", 3)
	touch(t, dir, "a.onnx", 5)
	touch(t, dir, "c.dummy", 1)
	touch(t, dir, "notes.txt", 1)
	touch(t, dir, "model.bin", 1)
	if err := os.Mkdir(filepath.Join(dir, "sub.onnx"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []types.Model{
		{ID: "a.onnx", Name: "a.onnx", Backend: "onnx", SizeBytes: 5},
		{ID: "b.GGUF", Name: "b.GGUF", Backend: "llamacpp", SizeBytes: 3},
		{ID: "c.dummy", Name: "c.dummy", Backend: "dummy", SizeBytes: 1},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(types.Model{}, "Path")); diff != "" {
		t.Fatalf("models mismatch (-want +got):\n%s", diff)
	}
	for _, m := range got {
		if !filepath.IsAbs(m.Path) || filepath.Dir(m.Path) != dir {
			t.Fatalf("unexpected path %q", m.Path)
		}
	}
}

func TestScanner_Skip(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.onnx", 1)
	touch(t, dir, "b.gguf", 1)
	s := &Scanner{Skip: map[string]bool{"llamacpp": true}}
	got, err := s.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a.onnx" {
		t.Fatalf("unexpected models: %+v", got)
	}
}

func TestScanner_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "modyn-catalog-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	touch(t, hTmp, "x.dummy", 1)
	rel := "~/" + strings.TrimPrefix(hTmp, home+string(filepath.Separator))
	got, err := LoadDir(rel)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 1 || got[0].ID != "x.dummy" {
		t.Fatalf("unexpected models: %+v", got)
	}
}

func TestScanner_MissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.onnx", 2)
	extra := touch(t, dir, "weights.gguf", 4)
	scanned, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Merge(scanned, []Entry{
		{ID: "a.onnx", Backend: "dummy"},
		{ID: "chat", Path: extra},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	byID := map[string]types.Model{}
	for _, m := range got {
		byID[m.ID] = m
	}
	if byID["a.onnx"].Backend != "dummy" {
		t.Fatalf("override not applied: %+v", byID["a.onnx"])
	}
	chat, ok := byID["chat"]
	if !ok || chat.Backend != "llamacpp" || chat.Path != extra || chat.SizeBytes != 4 {
		t.Fatalf("unexpected added model: %+v", chat)
	}
	if len(scanned) != 2 || scanned[0].Backend != "onnx" {
		t.Fatalf("input mutated: %+v", scanned)
	}
}

func TestMerge_Errors(t *testing.T) {
	if _, err := Merge(nil, []Entry{{ID: "ghost"}}); err == nil {
		t.Fatalf("expected error for entry without path")
	}
	if _, err := Merge(nil, []Entry{{ID: "x", Path: "/tmp/model.unknown"}}); err == nil {
		t.Fatalf("expected detection error")
	}
}
