package velesdb

import (
	"testing"

	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/quant"
)

func TestCreateCollectionPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c, err := db.CreateCollection("docs", 4, kernel.Cosine, quant.Full, WithTextField("body"))
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := c.Upsert(1, []float32{1, 0, 0, 0}, map[string]any{"body": "hello world"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	names := db2.ListCollections()
	if len(names) != 1 || names[0] != "docs" {
		t.Fatalf("expected [docs], got %v", names)
	}
	got, err := db2.Collection("docs")
	if err != nil {
		t.Fatalf("Collection lookup failed: %v", err)
	}
	payload, err := got.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if payload["body"] != "hello world" {
		t.Errorf("expected restored payload, got %v", payload)
	}
}

func TestCreateCollectionConflict(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := db.CreateCollection("a", 2, kernel.Cosine, quant.Full); err != nil {
		t.Fatalf("first CreateCollection failed: %v", err)
	}
	if _, err := db.CreateCollection("a", 2, kernel.Cosine, quant.Full); err == nil {
		t.Errorf("expected Conflict creating duplicate collection name")
	}
}

func TestDeleteCollectionRemovesFromList(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := db.CreateCollection("a", 2, kernel.Cosine, quant.Full); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := db.DeleteCollection("a"); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	if names := db.ListCollections(); len(names) != 0 {
		t.Errorf("expected no collections after delete, got %v", names)
	}
	if _, err := db.Collection("a"); err == nil {
		t.Errorf("expected NotFound looking up deleted collection")
	}
}

func TestCollectionNotFound(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Collection("missing"); err == nil {
		t.Errorf("expected NotFound for unknown collection")
	}
}
