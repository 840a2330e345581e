package storage

import "testing"

func TestBuildExportPath(t *testing.T) {
	key, err := BuildExportPath("6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b", 7)
	if err != nil {
		t.Fatalf("BuildExportPath() error = %v", err)
	}
	want := "sessions/6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b/turn-00007.parquet"
	if key != want {
		t.Fatalf("BuildExportPath() = %q, want %q", key, want)
	}
}

func TestBuildExportPathRejectsInvalidInput(t *testing.T) {
	if _, err := BuildExportPath("../oops", 1); err == nil {
		t.Fatal("expected invalid component error")
	}
	if _, err := BuildExportPath("session-1", 0); err == nil {
		t.Fatal("expected invalid turn error")
	}
}
