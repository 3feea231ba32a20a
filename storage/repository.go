// Package storage provides the storage abstraction behind the submission
// ledger. Records are grouped by namespace and keyed by (type, id).
package storage

import (
	"encoding/json"
	"fmt"
)

const (
	recordVer    = 1
	recordScheme = "json"
)

// Record is a stored value. Version is caller-managed and checked by PutCAS.
type Record struct {
	Ver     int    `json:"ver"`
	Scheme  string `json:"scheme"`
	Data    []byte `json:"data"`
	Version uint64 `json:"version,omitempty"`
}

// NewRecord encodes v as JSON into a Record carrying version.
func NewRecord(v any, version uint64) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return &Record{Ver: recordVer, Scheme: recordScheme, Data: data, Version: version}, nil
}

// Decode unmarshals the record payload into v.
func (r *Record) Decode(v any) error {
	if r.Ver != recordVer {
		return fmt.Errorf("unsupported record version: %d", r.Ver)
	}
	if r.Scheme != recordScheme {
		return fmt.Errorf("unsupported record scheme: %s", r.Scheme)
	}
	return json.Unmarshal(r.Data, v)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Ver:     r.Ver,
		Scheme:  r.Scheme,
		Data:    append([]byte(nil), r.Data...),
		Version: r.Version,
	}
}

// BatchTx provides writes within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Put(recordType string, recordID string, record *Record) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for record storage.
//
// List returns ids in ascending byte order. PutCAS with expectedVersion 0
// only creates; otherwise the stored Version must equal expectedVersion.
type Repository interface {
	Put(namespace string, recordType string, recordID string, record *Record) error
	Get(namespace string, recordType string, recordID string) (*Record, error)
	List(namespace string, recordType string) ([]string, error)
	Delete(namespace string, recordType string, recordID string) error
	PutCAS(namespace string, recordType string, recordID string, expectedVersion uint64, record *Record) error
	Batch(namespace string, fn func(tx BatchTx) error) error
	Close() error
}
