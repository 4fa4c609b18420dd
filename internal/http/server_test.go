package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"buste/internal/services"
	"buste/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "buste.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	accounts := services.NewAccountService(repo)
	ledger := services.NewLedgerService(repo, nil)
	balances := services.NewBalanceService(repo)

	s := NewServer(":0", accounts, ledger, balances, 100, time.Minute)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

// do runs one request against the server mux as user 1.
func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, s, "1", method, path, body)
}

func doAs(t *testing.T, s *Server, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:55555"
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := doAs(t, s, "", http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestMissingUserHeader(t *testing.T) {
	s := newTestServer(t)

	rec := doAs(t, s, "", http.MethodGet, "/api/wallets", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without X-User-ID: %d, want 401", rec.Code)
	}
	rec = doAs(t, s, "zero", http.MethodGet, "/api/wallets", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("with garbage X-User-ID: %d, want 401", rec.Code)
	}
}

func TestWalletEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/wallets", createWalletRequest{Name: "Checking", OpeningAmount: "150.00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create wallet: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[walletResponse](t, rec)
	if created.Name != "Checking" || created.OpeningAmount != "150" {
		t.Errorf("created = %+v", created)
	}

	rec = do(t, s, http.MethodGet, "/api/wallets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list wallets: %d", rec.Code)
	}
	wallets := decodeBody[[]walletResponse](t, rec)
	if len(wallets) != 1 || wallets[0].Balance == nil || wallets[0].Balance.WithPending != "150" {
		t.Errorf("wallets = %+v", wallets)
	}

	rec = do(t, s, http.MethodPut, fmt.Sprintf("/api/wallets/%d", created.ID),
		updateWalletRequest{Name: strPtr("Main checking")})
	if rec.Code != http.StatusOK {
		t.Fatalf("update wallet: %d %s", rec.Code, rec.Body.String())
	}

	// Nonzero opening amount means nonzero balance: deletion is refused.
	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/wallets/%d", created.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete wallet with balance: %d, want 409", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/wallets/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown wallet: %d, want 404", rec.Code)
	}
}

func TestFundEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/funds", createFundRequest{Name: "Groceries", PullPercentage: "30"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create fund: %d %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[fundResponse](t, rec)
	if created.PullPercentage != "30" || created.IsSavings {
		t.Errorf("created = %+v", created)
	}

	// Bootstrap created the savings fund, so the listing has two.
	rec = do(t, s, http.MethodGet, "/api/funds", nil)
	funds := decodeBody[[]fundResponse](t, rec)
	if len(funds) != 2 {
		t.Fatalf("got %d funds, want 2", len(funds))
	}
	var savingsID int64
	for _, f := range funds {
		if f.IsSavings {
			savingsID = f.ID
		}
	}
	if savingsID == 0 {
		t.Fatal("no savings fund in listing")
	}

	rec = do(t, s, http.MethodPut, fmt.Sprintf("/api/funds/%d", savingsID),
		updateFundRequest{PullPercentage: strPtr("10")})
	if rec.Code != http.StatusConflict {
		t.Errorf("set savings pull: %d, want 409", rec.Code)
	}
	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/funds/%d", savingsID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete savings: %d, want 409", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/funds", createFundRequest{Name: "Rent", PullPercentage: "80"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("pull sum over 100: %d, want 422", rec.Code)
	}
}

func TestEventEndpoints(t *testing.T) {
	s := newTestServer(t)

	wallet := decodeBody[walletResponse](t, do(t, s, http.MethodPost, "/api/wallets",
		createWalletRequest{Name: "Checking", OpeningAmount: "100"}))
	fund := decodeBody[fundResponse](t, do(t, s, http.MethodPost, "/api/funds",
		createFundRequest{Name: "Groceries", OpeningAmount: "100", PullPercentage: "40"}))

	rec := do(t, s, http.MethodPost, "/api/events", createEventRequest{
		Type:        "expense",
		Description: "weekly shop",
		Lines:       []eventLineRequest{{Amount: "-32,50", WalletID: wallet.ID, FundID: fund.ID}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", rec.Code, rec.Body.String())
	}
	expense := decodeBody[eventResponse](t, rec)
	if len(expense.Lines) != 1 || expense.Lines[0].Amount != "-32.5" {
		t.Errorf("expense = %+v", expense)
	}

	rec = do(t, s, http.MethodPost, "/api/events", createEventRequest{
		Type:     "income",
		WalletID: wallet.ID,
		Total:    "200",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create income: %d %s", rec.Code, rec.Body.String())
	}
	income := decodeBody[eventResponse](t, rec)
	if !income.Income {
		t.Error("income event not flagged as income")
	}

	rec = do(t, s, http.MethodGet, "/api/events", nil)
	events := decodeBody[[]eventResponse](t, rec)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	rec = do(t, s, http.MethodPatch, fmt.Sprintf("/api/events/%d", expense.ID),
		editEventRequest{Description: strPtr("groceries")})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit event: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[eventResponse](t, rec); got.Description != "groceries" {
		t.Errorf("description = %q", got.Description)
	}

	rec = do(t, s, http.MethodDelete, fmt.Sprintf("/api/events/%d", expense.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete event: %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/events/%d", expense.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted event: %d, want 404", rec.Code)
	}
}

func TestEventValidationStatuses(t *testing.T) {
	s := newTestServer(t)

	wallet := decodeBody[walletResponse](t, do(t, s, http.MethodPost, "/api/wallets",
		createWalletRequest{Name: "Checking"}))
	fund := decodeBody[fundResponse](t, do(t, s, http.MethodPost, "/api/funds",
		createFundRequest{Name: "Groceries"}))

	tests := []struct {
		name string
		req  createEventRequest
		want int
	}{
		{"no lines", createEventRequest{Type: "expense"}, http.StatusUnprocessableEntity},
		{"bad amount", createEventRequest{Type: "expense", Lines: []eventLineRequest{{Amount: "abc", WalletID: wallet.ID, FundID: fund.ID}}}, http.StatusUnprocessableEntity},
		{"missing fund", createEventRequest{Type: "expense", Lines: []eventLineRequest{{Amount: "-5", WalletID: wallet.ID}}}, http.StatusUnprocessableEntity},
		{"unknown fund", createEventRequest{Type: "expense", Lines: []eventLineRequest{{Amount: "-5", WalletID: wallet.ID, FundID: 999}}}, http.StatusNotFound},
		{"unknown type", createEventRequest{Type: "transfer"}, http.StatusBadRequest},
		{"income without total", createEventRequest{Type: "income", WalletID: wallet.ID}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, "/api/events", tt.req); rec.Code != tt.want {
				t.Errorf("got %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSummaryReflectsMutations(t *testing.T) {
	s := newTestServer(t)

	wallet := decodeBody[walletResponse](t, do(t, s, http.MethodPost, "/api/wallets",
		createWalletRequest{Name: "Checking", OpeningAmount: "100"}))
	fund := decodeBody[fundResponse](t, do(t, s, http.MethodPost, "/api/funds",
		createFundRequest{Name: "Groceries", OpeningAmount: "100"}))

	sum := decodeBody[summaryResponse](t, do(t, s, http.MethodGet, "/api/summary", nil))
	if sum.Total.WithPending != "100" {
		t.Fatalf("total = %s, want 100", sum.Total.WithPending)
	}

	// The summary is cached; a mutation must invalidate it.
	rec := do(t, s, http.MethodPost, "/api/events", createEventRequest{
		Type:  "expense",
		Lines: []eventLineRequest{{Amount: "-40", WalletID: wallet.ID, FundID: fund.ID}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", rec.Code, rec.Body.String())
	}

	sum = decodeBody[summaryResponse](t, do(t, s, http.MethodGet, "/api/summary", nil))
	if sum.Total.WithPending != "60" {
		t.Errorf("total after expense = %s, want 60", sum.Total.WithPending)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := newTestServer(t)

	wallet := decodeBody[walletResponse](t, do(t, s, http.MethodPost, "/api/wallets",
		createWalletRequest{Name: "Checking"}))

	rec := doAs(t, s, "2", http.MethodGet, fmt.Sprintf("/api/wallets/%d", wallet.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign wallet read: %d, want 404", rec.Code)
	}
	rec = doAs(t, s, "2", http.MethodGet, "/api/wallets", nil)
	if wallets := decodeBody[[]walletResponse](t, rec); len(wallets) != 0 {
		t.Errorf("user 2 sees %d wallets, want 0", len(wallets))
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	s := newTestServer(t)

	var last int
	for i := 0; i < 61; i++ {
		rec := do(t, s, http.MethodPost, "/api/pending/clear", nil)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("61st mutation: %d, want 429", last)
	}
	// Reads are not rate limited.
	if rec := do(t, s, http.MethodGet, "/api/summary", nil); rec.Code != http.StatusOK {
		t.Errorf("read after limit: %d, want 200", rec.Code)
	}
}

func strPtr(s string) *string { return &s }
