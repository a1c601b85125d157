package sheets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors ledgers into an external spreadsheet, one
	// tab per ledger. Tabs are matched by ShortID so renames keep the tab.
	LedgerExporter interface {
		// ExportLedger replaces the ledger's tab with records and returns a
		// reference to the written range.
		ExportLedger(ctx context.Context, l core.Ledger, records [][]string) (ref string, err error)
		// RemoveLedger deletes the ledger's tab. A missing tab is not an error.
		RemoveLedger(ctx context.Context, ledgerID string) error
		// Exported lists the short ids of every exported ledger.
		Exported(ctx context.Context) ([]string, error)
	}
)

const shortIDLen = 8

// ShortID is the tag that ties a tab to its ledger. Ids made only of
// letters, digits, '_' and '-' are tagged with their first eight
// characters once dashes are dropped, so two such ids sharing that prefix
// share a tab. Generated UUIDs make that a one in 2^32 event. Any other id
// is tagged with a hash of the whole id so the tag stays readable by
// TitleShortID.
func ShortID(ledgerID string) string {
	id := strings.ReplaceAll(ledgerID, "-", "")
	if id == "" || !tagChars.MatchString(id) {
		sum := sha256.Sum256([]byte(ledgerID))
		return hex.EncodeToString(sum[:])[:shortIDLen]
	}
	if len(id) > shortIDLen {
		id = id[:shortIDLen]
	}
	return id
}

const maxTitleLen = 90

var (
	invalidTitleChars = strings.NewReplacer("[", "(", "]", ")", "*", "", "?", "", "/", "-", "\\", "-", ":", "-", "'", "")
	tagChars          = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	titleTag          = regexp.MustCompile(`\[([A-Za-z0-9_]+)\]$`)
)

// TabTitle names the tab for a ledger: its name, cleaned of characters
// spreadsheets reject, followed by the short id in brackets.
func TabTitle(l core.Ledger) string {
	name := strings.TrimSpace(invalidTitleChars.Replace(l.Name))
	if name == "" {
		name = "Ledger"
	}
	if r := []rune(name); len(r) > maxTitleLen {
		name = strings.TrimSpace(string(r[:maxTitleLen]))
	}
	return name + " [" + ShortID(l.ID) + "]"
}

// TitleShortID extracts the short id from a tab title made by TabTitle.
func TitleShortID(title string) (string, bool) {
	m := titleTag.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}
