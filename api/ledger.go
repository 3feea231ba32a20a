package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/jmcleod/pushlog/internal/util"
	"github.com/jmcleod/pushlog/internal/uuid"
	"github.com/jmcleod/pushlog/relay"
	"github.com/jmcleod/pushlog/storage"
)

const (
	ledgerNamespace = "ledger"
	ledgerEntryType = "entry"
	ledgerHeadType  = "head"
	ledgerHeadID    = "head"

	// ledgerAppendAttempts bounds retries when another writer moved the head.
	ledgerAppendAttempts = 3
)

// GenesisHash is the prev_hash of the first ledger entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Ledger outcomes.
const (
	OutcomeRelayed = "relayed"
	OutcomeFailed  = "failed"
)

// LedgerEntry records one relay attempt. Entries form a hash chain through
// PrevHash; Fingerprint binds the submitted fields.
type LedgerEntry struct {
	ID             string  `json:"id"`
	Seq            uint64  `json:"seq"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Count          float64 `json:"count"`
	Style          string  `json:"style"`
	RecordedAt     string  `json:"recorded_at"`
	Outcome        string  `json:"outcome"`
	Error          string  `json:"error,omitempty"`
	UpstreamStatus int     `json:"upstream_status,omitempty"`
	Fingerprint    string  `json:"fingerprint"`
	CreatedAt      string  `json:"created_at"`
	PrevHash       string  `json:"prev_hash"`
}

// Payload returns the submitted fields of e.
func (e LedgerEntry) Payload() relay.Payload {
	return relay.Payload{
		Date:       e.Date,
		Time:       e.Time,
		Count:      e.Count,
		Style:      e.Style,
		RecordedAt: e.RecordedAt,
	}
}

// ledgerHead tracks the tip of the chain. Its record Version equals Seq so
// concurrent writers are serialized by PutCAS.
type ledgerHead struct {
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash"`
}

// ChainHash computes the link from an entry to its successor.
// hash = BLAKE3( entryID || prevHash || createdAt )
func ChainHash(entryID, prevHash, createdAt string) string {
	h := blake3.Sum256([]byte(entryID + prevHash + createdAt))
	return util.HexEncode(h[:])
}

// Fingerprint is the BLAKE3 digest of the payload's JSON encoding.
func Fingerprint(p relay.Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	h := blake3.Sum256(data)
	return util.HexEncode(h[:]), nil
}

func ledgerEntryKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// Ledger is an append-only, hash-chained record of relay attempts.
type Ledger struct {
	repo       storage.Repository
	maxEntries int
	now        func() time.Time

	mu sync.Mutex
}

// NewLedger returns a Ledger stored in repo. When maxEntries is positive,
// each append prunes the entry that falls out of retention.
func NewLedger(repo storage.Repository, maxEntries int) *Ledger {
	return &Ledger{repo: repo, maxEntries: maxEntries, now: time.Now}
}

// Close closes the underlying repository.
func (l *Ledger) Close() error {
	return l.repo.Close()
}

// Append records a relay attempt and returns the stored entry.
func (l *Ledger) Append(p relay.Payload, outcome, errKind string, upstreamStatus int) (LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 0; attempt < ledgerAppendAttempts; attempt++ {
		entry, err := l.appendOnce(p, outcome, errKind, upstreamStatus)
		if errors.Is(err, storage.ErrCASFailed) {
			continue
		}
		return entry, err
	}
	return LedgerEntry{}, fmt.Errorf("appending ledger entry: %w", storage.ErrCASFailed)
}

func (l *Ledger) appendOnce(p relay.Payload, outcome, errKind string, upstreamStatus int) (LedgerEntry, error) {
	head, headVersion, err := l.readHead()
	if err != nil {
		return LedgerEntry{}, err
	}
	prevHash := head.Hash
	if headVersion == 0 {
		prevHash = GenesisHash
	}

	fingerprint, err := Fingerprint(p)
	if err != nil {
		return LedgerEntry{}, err
	}

	seq := head.Seq + 1
	entry := LedgerEntry{
		ID:             uuid.New(),
		Seq:            seq,
		Date:           p.Date,
		Time:           p.Time,
		Count:          p.Count,
		Style:          p.Style,
		RecordedAt:     p.RecordedAt,
		Outcome:        outcome,
		Error:          errKind,
		UpstreamStatus: upstreamStatus,
		Fingerprint:    fingerprint,
		CreatedAt:      l.now().UTC().Format(time.RFC3339Nano),
		PrevHash:       prevHash,
	}

	entryRec, err := storage.NewRecord(entry, 0)
	if err != nil {
		return LedgerEntry{}, err
	}
	headRec, err := storage.NewRecord(ledgerHead{
		Seq:  seq,
		Hash: ChainHash(entry.ID, entry.PrevHash, entry.CreatedAt),
	}, seq)
	if err != nil {
		return LedgerEntry{}, err
	}

	err = l.repo.Batch(ledgerNamespace, func(tx storage.BatchTx) error {
		if err := tx.PutCAS(ledgerEntryType, ledgerEntryKey(seq), 0, entryRec); err != nil {
			return err
		}
		if err := tx.PutCAS(ledgerHeadType, ledgerHeadID, headVersion, headRec); err != nil {
			return err
		}
		if l.maxEntries > 0 && seq > uint64(l.maxEntries) {
			err := tx.Delete(ledgerEntryType, ledgerEntryKey(seq-uint64(l.maxEntries)))
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

func (l *Ledger) readHead() (ledgerHead, uint64, error) {
	rec, err := l.repo.Get(ledgerNamespace, ledgerHeadType, ledgerHeadID)
	if errors.Is(err, storage.ErrNotFound) {
		return ledgerHead{}, 0, nil
	}
	if err != nil {
		return ledgerHead{}, 0, fmt.Errorf("reading ledger head: %w", err)
	}
	var head ledgerHead
	if err := rec.Decode(&head); err != nil {
		return ledgerHead{}, 0, fmt.Errorf("decoding ledger head: %w", err)
	}
	return head, rec.Version, nil
}

// Head returns the sequence number and chain hash of the latest entry.
// Both are zero values for an empty ledger.
func (l *Ledger) Head() (uint64, string, error) {
	head, _, err := l.readHead()
	return head.Seq, head.Hash, err
}

// Entries returns all retained entries in append order.
func (l *Ledger) Entries() ([]LedgerEntry, error) {
	ids, err := l.entryIDs()
	if err != nil {
		return nil, err
	}
	return l.readEntries(ids)
}

// Page returns one page of entries, newest first, and the number of
// retained entries. Only the entries on the page are read and decoded.
func (l *Ledger) Page(p pageRequest) ([]LedgerEntry, PaginationMeta, error) {
	ids, err := l.entryIDs()
	if err != nil {
		return nil, PaginationMeta{}, err
	}
	lo, hi, meta := p.window(len(ids))
	entries, err := l.readEntries(ids[lo:hi])
	if err != nil {
		return nil, PaginationMeta{}, err
	}
	slices.Reverse(entries)
	return entries, meta, nil
}

// entryIDs lists entry keys oldest first. Keys are zero-padded sequence
// numbers, so byte order is append order.
func (l *Ledger) entryIDs() ([]string, error) {
	ids, err := l.repo.List(ledgerNamespace, ledgerEntryType)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}
	return ids, nil
}

func (l *Ledger) readEntries(ids []string) ([]LedgerEntry, error) {
	entries := make([]LedgerEntry, 0, len(ids))
	for _, id := range ids {
		rec, err := l.repo.Get(ledgerNamespace, ledgerEntryType, id)
		if err != nil {
			return nil, fmt.Errorf("reading ledger entry %s: %w", id, err)
		}
		var entry LedgerEntry
		if err := rec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decoding ledger entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
