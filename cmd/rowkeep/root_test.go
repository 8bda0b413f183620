package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	want := []string{"create-table", "drop-table", "schema", "get", "put", "delete", "list-tables"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("rootCmd is missing subcommand %q", name)
		}
	}
}

func TestReadBodyPrefersFileOverStdin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(path, []byte(`{"table":"orders"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	old := bodyFile
	bodyFile = path
	defer func() { bodyFile = old }()

	got, err := readBody()
	if err != nil {
		t.Fatalf("readBody: %v", err)
	}
	if string(got) != `{"table":"orders"}` {
		t.Errorf("readBody = %q, want the file's contents", got)
	}
}
