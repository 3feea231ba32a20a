package cmd

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pushlog/api"
	"github.com/jmcleod/pushlog/internal/util"
	"github.com/jmcleod/pushlog/internal/uuid"
)

type verifyResult struct {
	Source     string        `json:"source"`
	EntryCount int           `json:"entry_count"`
	FirstSeq   uint64        `json:"first_seq,omitempty"`
	LastSeq    uint64        `json:"last_seq,omitempty"`
	Valid      bool          `json:"valid"`
	Checks     []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

func (r *verifyResult) pass(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "pass", Detail: detail})
}

func (r *verifyResult) warn(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "warn", Detail: detail})
}

func (r *verifyResult) fail(name, detail string) {
	r.Valid = false
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "fail", Detail: detail})
}

// verifyLedger checks the hash chain, sequence numbers and fingerprints of
// export. Entries may be in any order; they are checked in seq order.
func verifyLedger(export ledgerExport) verifyResult {
	entries := slices.Clone(export.Entries)
	slices.SortFunc(entries, func(a, b api.LedgerEntry) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	result := verifyResult{
		EntryCount: len(entries),
		Valid:      true,
	}

	if len(entries) == 0 {
		if export.HeadSeq != 0 {
			result.fail("empty_chain", fmt.Sprintf("head is at seq %d but no entries are retained", export.HeadSeq))
		} else {
			result.pass("empty_chain", "no entries to verify")
		}
		return result
	}
	first, last := entries[0], entries[len(entries)-1]
	result.FirstSeq, result.LastSeq = first.Seq, last.Seq

	// 1. Genesis anchor.
	switch {
	case first.Seq == 1 && first.PrevHash == api.GenesisHash:
		result.pass("genesis_anchor", "")
	case first.Seq == 1:
		result.fail("genesis_anchor", fmt.Sprintf("first entry prev_hash=%s, expected genesis hash", first.PrevHash))
	default:
		result.warn("genesis_anchor", fmt.Sprintf("entries before seq %d were pruned; anchor not verifiable", first.Seq))
	}

	// 2. Consecutive sequence numbers.
	seqOK := true
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq != entries[i-1].Seq+1 {
			seqOK = false
			result.fail("sequence", fmt.Sprintf("seq %d is followed by seq %d", entries[i-1].Seq, entries[i].Seq))
			break
		}
	}
	if seqOK {
		result.pass("sequence", fmt.Sprintf("seq %d..%d", first.Seq, last.Seq))
	}

	// 3. Chain continuity.
	chainOK := true
	for i := 1; i < len(entries); i++ {
		prev := entries[i-1]
		expected := api.ChainHash(prev.ID, prev.PrevHash, prev.CreatedAt)
		if entries[i].PrevHash != expected {
			chainOK = false
			result.fail("chain_continuity", fmt.Sprintf("entry seq=%d (id=%s) has prev_hash=%s but expected %s",
				entries[i].Seq, entries[i].ID, entries[i].PrevHash, expected))
			break
		}
	}
	if chainOK {
		result.pass("chain_continuity", fmt.Sprintf("all %d entries link correctly", len(entries)))
	}

	// 4. Fingerprints bind the submitted fields.
	fpOK := true
	for _, e := range entries {
		fp, err := api.Fingerprint(e.Payload())
		if err != nil || fp != e.Fingerprint {
			fpOK = false
			result.fail("fingerprints", fmt.Sprintf("entry seq=%d fields do not match its fingerprint", e.Seq))
			break
		}
	}
	if fpOK {
		result.pass("fingerprints", "")
	}

	// 5. Well-formed IDs and digests.
	formatDetail := ""
	for _, e := range entries {
		switch {
		case !uuid.Valid(e.ID):
			formatDetail = fmt.Sprintf("entry seq=%d has malformed id %q", e.Seq, e.ID)
		case !isDigest(e.PrevHash):
			formatDetail = fmt.Sprintf("entry seq=%d has malformed prev_hash", e.Seq)
		case !isDigest(e.Fingerprint):
			formatDetail = fmt.Sprintf("entry seq=%d has malformed fingerprint", e.Seq)
		}
		if formatDetail != "" {
			break
		}
	}
	if formatDetail == "" {
		result.pass("entry_format", "")
	} else {
		result.fail("entry_format", formatDetail)
	}

	// 6. No duplicate IDs.
	seen := make(map[string]uint64, len(entries))
	dupOK := true
	for _, e := range entries {
		if prev, ok := seen[e.ID]; ok {
			dupOK = false
			result.fail("no_duplicate_ids", fmt.Sprintf("seq %d and seq %d share id=%s", prev, e.Seq, e.ID))
			break
		}
		seen[e.ID] = e.Seq
	}
	if dupOK {
		result.pass("no_duplicate_ids", "")
	}

	// 7. Monotonic timestamps. Clock skew happens, so this only warns.
	var prevTime time.Time
	tsDetail := ""
	for _, e := range entries {
		t, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
		if err != nil {
			tsDetail = fmt.Sprintf("entry seq=%d has unparsable created_at %q", e.Seq, e.CreatedAt)
			break
		}
		if !prevTime.IsZero() && t.Before(prevTime) {
			tsDetail = fmt.Sprintf("entry seq=%d (created_at=%s) is earlier than its predecessor", e.Seq, e.CreatedAt)
			break
		}
		prevTime = t
	}
	if tsDetail == "" {
		result.pass("monotonic_timestamps", "")
	} else {
		result.warn("monotonic_timestamps", tsDetail)
	}

	// 8. Head matches the last entry, which catches truncation at the tail.
	if export.HeadSeq == 0 && export.HeadHash == "" {
		result.warn("head", "no head recorded; removal of the newest entries cannot be detected")
	} else if last.Seq != export.HeadSeq {
		result.fail("head", fmt.Sprintf("head is at seq %d but the last entry is seq %d", export.HeadSeq, last.Seq))
	} else if h := api.ChainHash(last.ID, last.PrevHash, last.CreatedAt); h != export.HeadHash {
		result.fail("head", fmt.Sprintf("head hash %s does not match last entry (%s)", export.HeadHash, h))
	} else {
		result.pass("head", "")
	}

	return result
}

// isDigest reports whether s is a hex-encoded 32-byte digest.
func isDigest(s string) bool {
	b, err := util.HexDecode(s)
	return err == nil && len(b) == 32
}

func printHumanResult(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Ledger verification: %s\n", result.Source)
	fmt.Fprintf(w, "Entries: %d", result.EntryCount)
	if result.EntryCount > 0 {
		fmt.Fprintf(w, " (seq %d..%d)", result.FirstSeq, result.LastSeq)
	}
	fmt.Fprint(w, "\n\n")

	failures, warnings := 0, 0
	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
			failures++
		case "warn":
			tag = "[WARN]"
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
	}
}

func printJSONResult(w io.Writer, result verifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var verifyJSONOutput bool

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify the integrity of the submission ledger",
	Long: `Verifies hash chain integrity, sequence numbers, payload fingerprints and
timestamp ordering of the submission ledger.

Without arguments the configured ledger backend is read. With a file, a JSON
document produced by "pushlog ledger export" or a GET /api/submissions
response body is verified instead.

Exit status is 1 when the ledger is invalid and 2 when it cannot be read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedgerVerify,
}

func init() {
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	ledgerVerifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	export, source, err := readLedgerExport(cmd, args)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(2)
	}

	result := verifyLedger(export)
	result.Source = source

	out := cmd.OutOrStdout()
	if verifyJSONOutput {
		if err := printJSONResult(out, result); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanResult(out, result)
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

func readLedgerExport(cmd *cobra.Command, args []string) (ledgerExport, string, error) {
	if len(args) == 1 {
		export, err := readLedgerFile(args[0])
		return export, args[0], err
	}

	cfg, err := loadConfig()
	if err != nil {
		return ledgerExport{}, "", err
	}
	ledger, err := openLedger(cmd.Context(), cfg, true)
	if err != nil {
		return ledgerExport{}, "", err
	}
	if ledger == nil {
		return ledgerExport{}, "", errLedgerDisabled
	}
	defer ledger.Close()

	export, err := exportLedger(ledger)
	return export, cfg.Ledger + " ledger", err
}

func readLedgerFile(path string) (ledgerExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ledgerExport{}, fmt.Errorf("cannot read file: %w", err)
	}
	var export ledgerExport
	if err := json.Unmarshal(data, &export); err != nil {
		return ledgerExport{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return export, nil
}
