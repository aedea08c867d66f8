package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeWriteFile_CreatesParentAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.csv")
	if err := SafeWriteFile(path, []byte("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := SafeWriteFile(path, []byte("second")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "second" {
		t.Fatalf("got %q", b)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
	if !FileExists(path) {
		t.Fatalf("FileExists(%s) = false", path)
	}
	if FileExists(filepath.Dir(path)) {
		t.Fatalf("directory reported as file")
	}
}

func TestResolvePath(t *testing.T) {
	cases := []struct{ base, path, want string }{
		{"data", "beneficiary.csv", filepath.Join("data", "beneficiary.csv")},
		{"data", "/abs/beneficiary.csv", "/abs/beneficiary.csv"},
		{"", "beneficiary.csv", "beneficiary.csv"},
		{"data", "", ""},
	}
	for _, c := range cases {
		if got := ResolvePath(c.base, c.path); got != c.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", c.base, c.path, got, c.want)
		}
	}
}
