package bbolt

import (
	"errors"
	"os"
	"testing"

	"github.com/jmcleod/pushlog/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "ledger-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStorage(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	s := NewRepository(db)
	namespace := "ledger"
	recordType := "entry"
	recordID := "i1"
	rec := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`{"count":20}`)}

	t.Run("PutGet", func(t *testing.T) {
		err := s.Put(namespace, recordType, recordID, rec)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(namespace, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Ver != rec.Ver {
			t.Errorf("expected version %d, got %d", rec.Ver, got.Ver)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(namespace, recordType, "i2", rec)
		ids, err := s.List(namespace, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 IDs, got %d", len(ids))
		}
	})

	t.Run("PutCAS create-only", func(t *testing.T) {
		err := s.PutCAS(namespace, recordType, "cas1", 0, rec)
		if err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}

		err = s.PutCAS(namespace, recordType, "cas1", 0, rec)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS version match", func(t *testing.T) {
		recV1 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"v1"`), Version: 1}
		err := s.Put(namespace, recordType, "cas2", recV1)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		recV2 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"v2"`), Version: 2}
		err = s.PutCAS(namespace, recordType, "cas2", 1, recV2)
		if err != nil {
			t.Fatalf("PutCAS (version match) failed: %v", err)
		}

		got, _ := s.Get(namespace, recordType, "cas2")
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
	})

	t.Run("PutCAS version mismatch", func(t *testing.T) {
		recV5 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"v5"`), Version: 5}
		s.Put(namespace, recordType, "cas3", recV5)

		recV6 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"v6"`), Version: 6}
		err := s.PutCAS(namespace, recordType, "cas3", 3, recV6)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS non-zero on missing record", func(t *testing.T) {
		recV1 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"v1"`), Version: 1}
		err := s.PutCAS(namespace, recordType, "cas-missing", 1, recV1)
		if err != storage.ErrCASFailed {
			t.Errorf("expected ErrCASFailed for non-zero version on missing record, got %v", err)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		_, err := s.Get("nonexistent-namespace", recordType, recordID)
		if !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected missing namespace to match ErrNotFound, got %v", err)
		}

		_, err = s.Get(namespace, recordType, "nonexistent-record")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List nonexistent namespace", func(t *testing.T) {
		ids, err := s.List("nonexistent-namespace", recordType)
		if err != nil {
			t.Errorf("expected no error for nonexistent namespace in List, got %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected 0 ids, got %d", len(ids))
		}
	})

	t.Run("List handles non-matching shorter keys without panic", func(t *testing.T) {
		err := s.Put(namespace, "Z", "", rec)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("List panicked: %v", r)
			}
		}()

		ids, err := s.List(namespace, "entry")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) == 0 {
			t.Fatal("expected entry ids to be returned")
		}
		for _, id := range ids {
			if id == "" {
				t.Fatal("unexpected empty entry ID from non-matching key prefix")
			}
		}
	})

	t.Run("List is ordered", func(t *testing.T) {
		for _, id := range []string{"00000000000000000003", "00000000000000000001", "00000000000000000002"} {
			if err := s.Put(namespace, "seq", id, rec); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		ids, err := s.List(namespace, "seq")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"00000000000000000001", "00000000000000000002", "00000000000000000003"}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, ids)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(namespace, "seq", "00000000000000000001"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(namespace, "seq", "00000000000000000001"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.Delete("nonexistent-namespace", "seq", "x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNewRepositoryFromFile(t *testing.T) {
	f, err := os.CreateTemp("", "bbolt-file-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	repo, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	defer repo.Close()

	if repo.db == nil {
		t.Error("repo.db is nil")
	}

	// Test failure (invalid path)
	_, err = NewRepositoryFromFile("/nonexistent/path/to/db", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestBBoltBatch(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	s := NewRepository(db)
	namespace := "ledger"

	t.Run("atomic batch write", func(t *testing.T) {
		rec1 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"a"`)}
		rec2 := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"b"`)}

		err := s.Batch(namespace, func(tx storage.BatchTx) error {
			if err := tx.Put("entry", "b1", rec1); err != nil {
				return err
			}
			rec2_1 := *rec2
			rec2_1.Version = 1
			if err := tx.PutCAS("entry", "b2", 0, &rec2_1); err != nil {
				return err
			}
			rec2_2 := *rec2
			rec2_2.Version = 2
			return tx.PutCAS("entry", "b2", 1, &rec2_2)
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		got1, err := s.Get(namespace, "entry", "b1")
		if err != nil {
			t.Fatalf("Get b1 failed: %v", err)
		}
		if string(got1.Data) != `"a"` {
			t.Errorf("expected data \"a\", got %q", string(got1.Data))
		}

		got2, err := s.Get(namespace, "entry", "b2")
		if err != nil {
			t.Fatalf("Get b2 failed: %v", err)
		}
		if string(got2.Data) != `"b"` {
			t.Errorf("expected data \"b\", got %q", string(got2.Data))
		}
	})

	t.Run("batch rollback on error", func(t *testing.T) {
		rec := &storage.Record{Ver: 1, Scheme: "json", Data: []byte(`"should-not-exist"`)}

		err := s.Batch(namespace, func(tx storage.BatchTx) error {
			tx.Put("entry", "rollback-test", rec)
			return storage.ErrCASFailed
		})
		if err != storage.ErrCASFailed {
			t.Fatalf("expected ErrCASFailed, got %v", err)
		}

		_, err = s.Get(namespace, "entry", "rollback-test")
		if err == nil {
			t.Error("expected record to not exist after rollback")
		}
	})
}
