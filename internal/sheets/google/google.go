package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	// mu serializes tab lookups and structural changes so two exports of
	// the same ledger cannot both add a tab.
	mu sync.Mutex
}

var _ ports.LedgerExporter = (*Client)(nil)

// Credentials selects the service account used to reach the spreadsheet.
// JSON wins over File.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New creates a client for spreadsheetID. opts are passed to the Sheets
// service as is.
func New(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewWithCredentials creates a client authenticated as a service account.
func NewWithCredentials(ctx context.Context, spreadsheetID string, creds Credentials) (*Client, error) {
	credentialsJSON, err := creds.load(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func (c Credentials) load(ctx context.Context) ([]byte, error) {
	switch {
	case strings.TrimSpace(c.ServiceAccountJSON) != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(c.ServiceAccountJSON), nil
	case strings.TrimSpace(c.ServiceAccountFile) != "":
		b, err := os.ReadFile(c.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", c.ServiceAccountFile, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

type tab struct {
	id    int64
	title string
}

// tabs returns the spreadsheet tabs tagged with a ledger short id.
func (c *Client) tabs(ctx context.Context) (map[string]tab, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	out := make(map[string]tab, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		if short, ok := ports.TitleShortID(s.Properties.Title); ok {
			out[short] = tab{id: s.Properties.SheetId, title: s.Properties.Title}
		}
	}
	return out, nil
}

func (c *Client) batch(ctx context.Context, reqs ...*gsheet.Request) (*gsheet.BatchUpdateSpreadsheetResponse, error) {
	return c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
}

// ensureTab returns the title of the ledger's tab, creating or renaming it
// as needed.
func (c *Client) ensureTab(ctx context.Context, l core.Ledger) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tabs, err := c.tabs(ctx)
	if err != nil {
		return "", err
	}
	want := ports.TabTitle(l)
	existing, ok := tabs[ports.ShortID(l.ID)]

	switch {
	case !ok:
		_, err = c.batch(ctx, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{
			Properties: &gsheet.SheetProperties{Title: want},
		}})
		if err != nil {
			return "", fmt.Errorf("add tab %q: %w", want, err)
		}
		slog.InfoContext(ctx, "Created ledger tab", "ledger_id", l.ID, "title", want)
	case existing.title != want:
		_, err = c.batch(ctx, &gsheet.Request{UpdateSheetProperties: &gsheet.UpdateSheetPropertiesRequest{
			Properties: &gsheet.SheetProperties{SheetId: existing.id, Title: want},
			Fields:     "title",
		}})
		if err != nil {
			return "", fmt.Errorf("rename tab %q: %w", existing.title, err)
		}
		slog.InfoContext(ctx, "Renamed ledger tab", "ledger_id", l.ID, "from", existing.title, "to", want)
	}
	return want, nil
}

// ExportLedger clears the ledger's tab and writes records from A1.
func (c *Client) ExportLedger(ctx context.Context, l core.Ledger, records [][]string) (string, error) {
	title, err := c.ensureTab(ctx, l)
	if err != nil {
		return "", err
	}

	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, a1(title, "A:Z"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("clear tab %q: %w", title, err)
	}

	values := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		values[i] = row
	}
	ref := a1(title, fmt.Sprintf("A1:G%d", max(len(records), 1)))
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write tab %q: %w", title, err)
	}
	return ref, nil
}

// RemoveLedger deletes the ledger's tab if there is one.
func (c *Client) RemoveLedger(ctx context.Context, ledgerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tabs, err := c.tabs(ctx)
	if err != nil {
		return err
	}
	existing, ok := tabs[ports.ShortID(ledgerID)]
	if !ok {
		return nil
	}
	_, err = c.batch(ctx, &gsheet.Request{DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: existing.id}})
	if err != nil {
		return fmt.Errorf("delete tab %q: %w", existing.title, err)
	}
	slog.InfoContext(ctx, "Deleted ledger tab", "ledger_id", ledgerID, "title", existing.title)
	return nil
}

// Exported lists the short ids of ledgers that have a tab.
func (c *Client) Exported(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tabs, err := c.tabs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tabs))
	for short := range tabs {
		out = append(out, short)
	}
	return out, nil
}

// a1 builds an A1 range on a tab, quoting the title.
func a1(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}
