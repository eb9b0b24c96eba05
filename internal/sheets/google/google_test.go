package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"feeledger/internal/core"
)

// fakeSheets serves the spreadsheet metadata, batchUpdate and Values
// endpoints the client uses. Like the real API it rejects ranges on tabs that
// do not exist.
type fakeSheets struct {
	mu    sync.Mutex
	tabs  map[string]map[int][]any
	gets  int
	added []string
	fails bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fails {
		http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
		return
	}

	const base = "/v4/spreadsheets/sheet-id"
	switch {
	case r.URL.Path == base && r.Method == http.MethodGet:
		sheets := []map[string]any{}
		for title := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id", "sheets": sheets})
		return
	case r.URL.Path == base+":batchUpdate" && r.Method == http.MethodPost:
		var body struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, req := range body.Requests {
			title := req.AddSheet.Properties.Title
			f.added = append(f.added, title)
			f.tabs[title] = map[int][]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id", "replies": []any{map[string]any{}}})
		return
	case !strings.HasPrefix(r.URL.Path, base+"/values/"):
		http.NotFound(w, r)
		return
	}

	rng := strings.TrimPrefix(r.URL.Path, base+"/values/")
	tab, cells, _ := strings.Cut(rng, "!")
	rows, ok := f.tabs[tab]
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":{"code":400,"message":"Unable to parse range: %s","status":"INVALID_ARGUMENT"}}`, rng)
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.gets++
		last := 0
		for n := range rows {
			last = max(last, n)
		}
		values := make([][]any, last)
		for n := 1; n <= last; n++ {
			if row, ok := rows[n]; ok {
				values[n-1] = []any{row[0]}
			} else {
				values[n-1] = []any{}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})
	case http.MethodPut:
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var row int
		fmt.Sscanf(cells, "A%d", &row)
		rows[row] = body.Values[0]
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{tabs: map[string]map[int][]any{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-id", SheetName: "Fees"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, fake
}

func record(admissionNo string, month, year int, paid int64) core.FeeRecord {
	return core.FeeRecord{
		AdmissionNo:     admissionNo,
		StudentName:     "Student " + admissionNo,
		Class:           "KG1",
		Period:          core.Period{Month: month, Year: year},
		TotalFee:        core.Cents(100000),
		PaidAmount:      core.Cents(paid),
		RemainingAmount: core.Cents(100000 - paid),
		UpdatedAt:       time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestClient_UpsertFeeRow(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	ref, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 0))
	if err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}
	if ref != "2025-26 Fees!A2:L2" {
		t.Errorf("UpsertFeeRow() ref = %q, want first data row", ref)
	}
	if got := fake.tabs["2025-26 Fees"][1][0]; got != "Key" {
		t.Errorf("header cell = %v, want Key", got)
	}

	ref, err = c.UpsertFeeRow(ctx, record("S2", 4, 2025, 0))
	if err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}
	if ref != "2025-26 Fees!A3:L3" {
		t.Errorf("second student ref = %q, want row 3", ref)
	}

	// a payment rewrites the existing row
	ref, err = c.UpsertFeeRow(ctx, record("S1", 4, 2025, 40000))
	if err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}
	if ref != "2025-26 Fees!A2:L2" {
		t.Errorf("update ref = %q, want row 2", ref)
	}
	if got := fake.tabs["2025-26 Fees"][2][9]; got != "400.00" {
		t.Errorf("paid cell = %v, want 400.00", got)
	}
	if fake.gets != 1 {
		t.Errorf("column reads = %d, want 1 while cache is fresh", fake.gets)
	}

	// March 2026 belongs to the same academic year
	if ref, _ := c.UpsertFeeRow(ctx, record("S1", 3, 2026, 0)); ref != "2025-26 Fees!A4:L4" {
		t.Errorf("March ref = %q, want same tab row 4", ref)
	}
}

func TestClient_RowCacheExpiresAndRecovers(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 0)); err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}

	now = now.Add(c.cacheTTL + time.Second)
	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 10)); err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}
	if fake.gets != 2 {
		t.Errorf("column reads = %d, want reload after TTL", fake.gets)
	}

	fake.fails = true
	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 20)); err == nil {
		t.Fatal("UpsertFeeRow() error = nil, want API failure")
	}
	fake.fails = false
	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 30)); err != nil {
		t.Fatalf("UpsertFeeRow() after recovery error = %v", err)
	}
	if fake.gets != 3 {
		t.Errorf("column reads = %d, want reload after failed write", fake.gets)
	}
	if len(fake.tabs["2025-26 Fees"]) != 2 {
		t.Errorf("rows = %d, want header plus one row", len(fake.tabs["2025-26 Fees"]))
	}
}

func TestClient_CreatesMissingAcademicYearTab(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)
	fake.tabs["2025-26 Fees"] = map[int][]any{1: {"Key"}}

	if _, err := c.UpsertFeeRow(ctx, record("S1", 3, 2026, 0)); err != nil {
		t.Fatalf("UpsertFeeRow() existing tab error = %v", err)
	}
	if len(fake.added) != 0 {
		t.Fatalf("added tabs = %v, want none for an existing tab", fake.added)
	}

	// April opens the next academic year
	ref, err := c.UpsertFeeRow(ctx, record("S1", 4, 2026, 0))
	if err != nil {
		t.Fatalf("UpsertFeeRow() new year error = %v", err)
	}
	if ref != "2026-27 Fees!A2:L2" {
		t.Errorf("UpsertFeeRow() ref = %q, want first row of the new tab", ref)
	}
	if len(fake.added) != 1 || fake.added[0] != "2026-27 Fees" {
		t.Errorf("added tabs = %v, want [2026-27 Fees]", fake.added)
	}
	if got := fake.tabs["2026-27 Fees"][1][0]; got != "Key" {
		t.Errorf("new tab header cell = %v, want Key", got)
	}

	if _, err := c.UpsertFeeRow(ctx, record("S2", 5, 2026, 0)); err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}
	if len(fake.added) != 1 {
		t.Errorf("added tabs = %v, want the tab created once", fake.added)
	}
}

func TestClient_RecreatesTabRemovedByHand(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 0)); err != nil {
		t.Fatalf("UpsertFeeRow() error = %v", err)
	}
	delete(fake.tabs, "2025-26 Fees")
	now = now.Add(c.cacheTTL + time.Second)

	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 10)); err == nil {
		t.Fatal("UpsertFeeRow() error = nil, want unknown range")
	}
	if _, err := c.UpsertFeeRow(ctx, record("S1", 4, 2025, 20)); err != nil {
		t.Fatalf("UpsertFeeRow() after removal error = %v", err)
	}
	if len(fake.added) != 2 {
		t.Errorf("added tabs = %v, want the tab created again", fake.added)
	}
}

func TestNew_RequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("New() error = nil, want missing spreadsheet id")
	}
}

func TestIndexRows(t *testing.T) {
	values := [][]any{
		{"Key"},
		{"S1/2025-04"},
		{},
		{" S2/2025-04 "},
		{"S1/2025-04"},
	}
	rows := indexRows(values)
	if rows.nextRow != 6 {
		t.Errorf("nextRow = %d, want 6", rows.nextRow)
	}
	if rows.keys["S1/2025-04"] != 2 {
		t.Errorf("S1 row = %d, want first occurrence 2", rows.keys["S1/2025-04"])
	}
	if rows.keys["S2/2025-04"] != 4 {
		t.Errorf("S2 row = %d, want 4", rows.keys["S2/2025-04"])
	}
	if _, ok := rows.keys["Key"]; ok {
		t.Error("header row should not be indexed")
	}
}

func TestAcademicSheetName(t *testing.T) {
	tests := []struct {
		period core.Period
		want   string
	}{
		{core.Period{Month: 4, Year: 2025}, "2025-26 Fees"},
		{core.Period{Month: 3, Year: 2026}, "2025-26 Fees"},
		{core.Period{Month: 12, Year: 2099}, "2099-00 Fees"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := academicSheetName(" Fees ", tt.period.AcademicYear()); got != tt.want {
				t.Errorf("academicSheetName() = %q, want %q", got, tt.want)
			}
		})
	}
}
