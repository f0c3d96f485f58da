package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"djassa/internal/core"
)

// fakeSheets serves the two Values endpoints the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]interface{}
	updates []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.rows})
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		f.rows = append(f.rows, vr.Values...)
		f.updates = append(f.updates, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": len(vr.Values)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return newClient(svc, "sheet-id", "Journal")
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_AppendWritesHeaderOnEmptySheet(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	entry := core.LedgerEntry{
		Date:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		ShopName: "Chez Awa",
		Kind:     "sale",
		Label:    "Savon",
		Quantity: 3,
		Amount:   1500,
		Ref:      "sale:1",
	}
	ref, err := c.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "2025 Journal!A2:G2" {
		t.Errorf("unexpected ref %q", ref)
	}
	if len(fake.rows) != 2 || fake.rows[0][0] != "Date" {
		t.Fatalf("expected header then row, got %v", fake.rows)
	}

	entry.Ref = "sale:2"
	ref, err = c.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if ref != "2025 Journal!A3:G3" {
		t.Errorf("unexpected second ref %q", ref)
	}

	entries, err := c.ListEntries(context.Background(), 2025)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[1].Ref != "sale:2" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestClient_AppendValidates(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	_, err := c.Append(context.Background(), core.LedgerEntry{Kind: "sale"})
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
