package memory

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/jmcleod/pushlog/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	namespace := "ledger"
	recordType := "entry"
	recordID := "id1"
	rec := &storage.Record{
		Ver:     1,
		Scheme:  "json",
		Data:    []byte(`{"count":10}`),
		Version: 1,
	}

	t.Run("PutAndGet", func(t *testing.T) {
		err := repo.Put(namespace, recordType, recordID, rec)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := repo.Get(namespace, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if got.Ver != rec.Ver || got.Scheme != rec.Scheme || !bytes.Equal(got.Data, rec.Data) || got.Version != rec.Version {
			t.Errorf("Get returned wrong record: %+v", got)
		}

		// Test isolation (cloning)
		got.Data[0] = 'X'
		got2, _ := repo.Get(namespace, recordType, recordID)
		if got2.Data[0] == 'X' {
			t.Error("Memory repository should return clones of records")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", recordType, recordID)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get with nonexistent namespace: expected ErrNotFound, got %v", err)
		}

		_, err = repo.Get(namespace, recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get with nonexistent record: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(namespace, "entry", "id0", rec)
		repo.Put(namespace, "head", "id1", rec)

		ids, err := repo.List(namespace, "entry")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "id0" || ids[1] != "id1" {
			t.Errorf("Expected sorted [id0 id1], got %v", ids)
		}

		ids, _ = repo.List("nonexistent", "entry")
		if len(ids) != 0 {
			t.Errorf("Expected 0 IDs for nonexistent namespace, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(namespace, "entry", "id0"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(namespace, "entry", "id0"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("PutCAS", func(t *testing.T) {
		repo := NewRepository()
		rec1 := &storage.Record{Version: 1}
		rec2 := &storage.Record{Version: 2}

		// Create-only (expectedVersion = 0)
		err := repo.PutCAS(namespace, recordType, recordID, 0, rec1)
		if err != nil {
			t.Fatalf("PutCAS create failed: %v", err)
		}

		// Create-only on existing record
		err = repo.PutCAS(namespace, recordType, recordID, 0, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}

		// Version mismatch on create
		err = repo.PutCAS(namespace, "other", "id", 1, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}

		// Version match update
		err = repo.PutCAS(namespace, recordType, recordID, 1, rec2)
		if err != nil {
			t.Fatalf("PutCAS update failed: %v", err)
		}

		// Version mismatch update
		err = repo.PutCAS(namespace, recordType, recordID, 1, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		repo := NewRepository()

		// Successful batch
		err := repo.Batch(namespace, func(tx storage.BatchTx) error {
			if err := tx.Put("entry", "id1", rec); err != nil {
				return err
			}
			return tx.PutCAS("entry", "id2", 0, rec)
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		if _, err := repo.Get(namespace, "entry", "id1"); err != nil {
			t.Error("Record id1 should exist after batch")
		}

		// Failing batch (rollback)
		err = repo.Batch(namespace, func(tx storage.BatchTx) error {
			tx.Put("entry", "id3", rec)
			return fmt.Errorf("simulated error")
		})
		if err == nil {
			t.Error("Expected error from Batch, got nil")
		}

		if _, err := repo.Get(namespace, "entry", "id3"); err == nil {
			t.Error("Record id3 should NOT exist after failed batch")
		}

		// Rollback with pre-existing data
		repo.Batch(namespace, func(tx storage.BatchTx) error {
			tx.Put("entry", "id1", &storage.Record{Ver: 2})
			tx.Delete("entry", "id2")
			return fmt.Errorf("simulated error")
		})
		got, _ := repo.Get(namespace, "entry", "id1")
		if got.Ver != 1 {
			t.Errorf("Expected Ver 1 after rollback, got %d", got.Ver)
		}
		if _, err := repo.Get(namespace, "entry", "id2"); err != nil {
			t.Error("Record id2 should survive a rolled back delete")
		}
	})
}

func TestBatchRollbackTouchedKeysOnly(t *testing.T) {
	repo := NewRepository()
	head := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`{"seq":1}`), Version: 1}
	if err := repo.Put("ledger", "head", "head", head); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put("ledger", "entry", "1", &storage.Record{Ver: 1}); err != nil {
		t.Fatal(err)
	}

	err := repo.Batch("ledger", func(tx storage.BatchTx) error {
		if err := tx.PutCAS("entry", "2", 0, &storage.Record{Ver: 1}); err != nil {
			return err
		}
		if err := tx.Delete("entry", "1"); err != nil {
			return err
		}
		// Stale expected version fails the batch after two writes.
		return tx.PutCAS("head", "head", 7, &storage.Record{Ver: 1, Version: 8})
	})
	if !errors.Is(err, storage.ErrCASFailed) {
		t.Fatalf("Batch error = %v, want ErrCASFailed", err)
	}

	if _, err := repo.Get("ledger", "entry", "2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("entry 2 should be rolled back, got %v", err)
	}
	if _, err := repo.Get("ledger", "entry", "1"); err != nil {
		t.Errorf("entry 1 should be restored: %v", err)
	}
	got, err := repo.Get("ledger", "head", "head")
	if err != nil || got.Version != 1 {
		t.Errorf("head = %+v, %v; want version 1", got, err)
	}

	// A failed batch on a fresh namespace leaves no namespace behind.
	_ = repo.Batch("fresh", func(tx storage.BatchTx) error {
		tx.Put("entry", "x", &storage.Record{Ver: 1})
		return fmt.Errorf("simulated error")
	})
	if _, err := repo.Get("fresh", "entry", "x"); !errors.Is(err, storage.ErrNamespaceNotFound) {
		t.Errorf("fresh namespace should be gone, got %v", err)
	}
}
