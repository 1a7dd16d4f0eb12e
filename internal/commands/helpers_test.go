package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/frostline/rehydrate/pkg/types"
)

func TestNewLedger_Redis(t *testing.T) {
	cfg := &types.ProjectConfig{
		Ledger: "redis",
		Redis:  &types.RedisConfig{Addr: "localhost:6379"},
	}
	led, err := newLedger(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if led == nil {
		t.Fatal("expected non-nil ledger")
	}
}

func TestNewLedger_Postgres(t *testing.T) {
	cfg := &types.ProjectConfig{
		Ledger:   "postgres",
		Postgres: &types.PostgresConfig{DSN: "postgres://localhost/rehydrate"},
	}
	led, err := newLedger(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if led == nil {
		t.Fatal("expected non-nil ledger")
	}
}

func TestNewLedger_Unknown(t *testing.T) {
	cfg := &types.ProjectConfig{Ledger: "etcd"}
	_, err := newLedger(cfg)
	if err == nil {
		t.Fatal("expected error for unknown ledger")
	}
}

func TestNewLedger_MissingSection(t *testing.T) {
	cfg := &types.ProjectConfig{Ledger: "redis"}
	_, err := newLedger(cfg)
	if err == nil {
		t.Fatal("expected error for missing redis section")
	}
}

func TestLoadRequestFile_Valid(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`requestedBy: ops
granules:
  - granuleId: g1
    files:
      - key: g1/scene.h5
        bucket: cold-archive
`)
	path := filepath.Join(dir, "request.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := loadRequestFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Granules) != 1 {
		t.Fatalf("expected 1 granule, got %d", len(req.Granules))
	}
	if req.Granules[0].GranuleID != "g1" {
		t.Errorf("expected granule 'g1', got %q", req.Granules[0].GranuleID)
	}
	if req.RequestedBy != "ops" {
		t.Errorf("expected requestedBy 'ops', got %q", req.RequestedBy)
	}
}

func TestLoadRequestFile_JSON(t *testing.T) {
	// YAML is a superset of JSON, so JSON request files load too.
	dir := t.TempDir()
	data := []byte(`{"granules":[{"granuleId":"g2","files":[{"key":"g2/a","bucket":"b"}]}]}`)
	path := filepath.Join(dir, "request.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := loadRequestFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Granules) != 1 || req.Granules[0].GranuleID != "g2" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestLoadRequestFile_MissingFile(t *testing.T) {
	_, err := loadRequestFile("/nonexistent/path/request.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRequestFile_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte(":\n  :\n  - [invalid"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loadRequestFile(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadRequestFile_NoGranules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("requestedBy: ops\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loadRequestFile(path)
	if err == nil {
		t.Fatal("expected error for request without granules")
	}
}
