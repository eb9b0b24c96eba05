package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"feeledger/internal/core"
	"feeledger/internal/log"
	ports "feeledger/internal/sheets"
)

// header is written to the first row of a fresh tab.
var header = []any{
	"Key", "Admission No", "Student", "Class", "Academic Year", "Month", "Year",
	"Total Fee", "Back Dues", "Paid", "Remaining", "Updated At",
}

const lastColumn = "L"

type Config struct {
	SpreadsheetID string
	// SheetName is the tab base name; each academic year gets "<year> <base>".
	SheetName string
	// RowCacheTTL bounds how long row positions are trusted. Zero uses 5m.
	RowCacheTTL time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	cacheTTL time.Duration
	now      func() time.Time
	mu       sync.Mutex
	rowCache map[string]*sheetRows
	// tabs holds the titles known to exist in the spreadsheet.
	tabs map[string]bool
}

// sheetRows remembers where each key lives in one tab.
type sheetRows struct {
	keys     map[string]int
	nextRow  int
	loadedAt time.Time
}

var _ ports.FeeRowWriter = (*Client)(nil)

// New creates a Sheets client. Without options the service account
// credentials are read from the environment.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Fees"
	}

	if len(opts) == 0 {
		creds, err := serviceAccountCredentials(ctx)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	ttl := cfg.RowCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		cacheTTL:      ttl,
		now:           time.Now,
		rowCache:      map[string]*sheetRows{},
		tabs:          map[string]bool{},
	}, nil
}

// serviceAccountCredentials reads GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSheets)
	if raw := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); raw != "" {
		logger.InfoContext(ctx, "Using inline service account credentials")
		return []byte(raw), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	logger.InfoContext(ctx, "Read service account credentials", "path", path)
	return data, nil
}

// UpsertFeeRow writes the record into its academic year's tab, updating the
// row that already carries its key or appending a new one.
func (c *Client) UpsertFeeRow(ctx context.Context, rec core.FeeRecord) (string, error) {
	if rec.AdmissionNo == "" {
		return "", core.Validationf("fee row needs an admission number")
	}
	sheet := academicSheetName(c.sheetBase, rec.AcademicYear())
	key := rowKey(rec)

	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.rowsFor(ctx, sheet)
	if err != nil {
		return "", err
	}

	row, exists := rows.keys[key]
	if !exists {
		row = rows.nextRow
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, row, lastColumn, row)
	vr := &gsheet.ValueRange{Values: [][]any{feeRowValues(rec)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		delete(c.rowCache, sheet)
		return "", fmt.Errorf("write %s: %w", rng, err)
	}

	if !exists {
		rows.keys[key] = row
		rows.nextRow++
	}
	return rng, nil
}

// rowsFor returns the cached key index of a tab, reloading column A when the
// cache is missing or stale. A fresh tab gets the header row.
func (c *Client) rowsFor(ctx context.Context, sheet string) (*sheetRows, error) {
	if cached, ok := c.rowCache[sheet]; ok && c.now().Sub(cached.loadedAt) < c.cacheTTL {
		return cached, nil
	}

	if err := c.ensureTab(ctx, sheet); err != nil {
		return nil, err
	}

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		// the tab may have been removed by hand; look it up again next time
		delete(c.tabs, sheet)
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	rows := indexRows(resp.Values)
	rows.loadedAt = c.now()
	if len(resp.Values) == 0 {
		hr := fmt.Sprintf("%s!A1:%s1", sheet, lastColumn)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, hr, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("write header %s: %w", hr, err)
		}
		rows.nextRow = 2
	}
	c.rowCache[sheet] = rows
	return rows, nil
}

// ensureTab creates the tab when the spreadsheet does not have it yet. A new
// academic year starts without one.
func (c *Client) ensureTab(ctx context.Context, sheet string) error {
	if c.tabs[sheet] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.tabs[sh.Properties.Title] = true
		}
	}
	if c.tabs[sheet] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create tab %s: %w", sheet, err)
	}
	c.tabs[sheet] = true
	log.FromContext(ctx).WithComponent(log.ComponentSheets).InfoContext(ctx, "Created sheet tab", "sheet", sheet)
	return nil
}
