package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/retention-module/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// errorCode извлекает код ошибки из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("декодирование ошибки: %v", err)
	}
	return body.Error.Code
}

func TestPaginationDefaults(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name       string
		limit      *int
		offset     *int
		wantLimit  int
		wantOffset int
	}{
		{"по умолчанию", nil, nil, 100, 0},
		{"обычные значения", intPtr(20), intPtr(40), 20, 40},
		{"limit меньше 1", intPtr(0), nil, 1, 0},
		{"limit больше 1000", intPtr(5000), nil, 1000, 0},
		{"отрицательный offset", nil, intPtr(-3), 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := paginationDefaults(tt.limit, tt.offset)
			if l != tt.wantLimit || o != tt.wantOffset {
				t.Errorf("paginationDefaults() = (%d, %d), ожидалось (%d, %d)", l, o, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestErrorStatus(t *testing.T) {
	wrap := func(err error) error {
		return &service.OperationError{Op: "ExecuteDisposition", DocumentID: "doc-1", Err: err}
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", wrap(service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid release", wrap(service.ErrInvalidRelease), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"policy not found", wrap(service.ErrPolicyNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"status not found", wrap(service.ErrStatusNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"legal hold", wrap(service.ErrBlockedByLegalHold), http.StatusLocked, "BLOCKED_BY_LEGAL_HOLD"},
		{"approval required", wrap(service.ErrApprovalRequired), http.StatusConflict, "APPROVAL_REQUIRED"},
		{"already disposed", wrap(service.ErrAlreadyDisposed), http.StatusConflict, "INVALID_TRANSITION"},
		{"policy in use", wrap(service.ErrPolicyInUse), http.StatusConflict, "POLICY_IN_USE"},
		{"concurrency", wrap(service.ErrConcurrencyConflict), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{"scan in progress", service.ErrScanInProgress, http.StatusConflict, "SCAN_IN_PROGRESS"},
		{"blob store", wrap(service.ErrBlobStoreUnavailable), http.StatusBadGateway, "BLOB_STORE_UNAVAILABLE"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("errorStatus() = (%d, %s), ожидалось (%d, %s)", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

// TestWriteServiceError_Internal — текст внутренней ошибки не уходит клиенту.
func TestWriteServiceError_Internal(t *testing.T) {
	h := &APIHandler{logger: testLogger()}
	rec := httptest.NewRecorder()
	h.writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/policies", nil),
		"ListPolicies", fmt.Errorf("pgx: %w", errors.New("password authentication failed")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, ожидался 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("тело ответа содержит текст внутренней ошибки: %s", rec.Body.String())
	}
}

func TestDecodeBody(t *testing.T) {
	h := NewAPIHandler(nil, nil, nil, nil, nil, nil, nil, testLogger())

	tests := []struct {
		name     string
		body     string
		optional bool
		wantOK   bool
	}{
		{"корректное тело", `{"document_ids":["a","b"]}`, false, true},
		{"пустое тело", ``, false, false},
		{"пустое необязательное тело", ``, true, true},
		{"некорректный JSON", `{"document_ids":`, false, false},
		{"неизвестное поле", `{"document_ids":["a"],"extra":1}`, false, false},
		{"пустой список", `{"document_ids":[]}`, false, false},
		{"пустой идентификатор", `{"document_ids":["a",""]}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req documentIDsRequest
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			ok := h.decodeBody(rec, r, &req, tt.optional)
			if ok != tt.wantOK {
				t.Fatalf("decodeBody() = %v, ожидалось %v (ответ %s)", ok, tt.wantOK, rec.Body.String())
			}
			if !ok && rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, ожидался 400", rec.Code)
			}
		})
	}
}

func TestBindUUIDPath(t *testing.T) {
	tests := []struct {
		value  string
		wantOK bool
	}{
		{"3f2b8c1e-5d4a-4e6f-9a7b-1c2d3e4f5a6b", true},
		{"not-a-uuid", false},
		{"12345", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			var got string
			var ok bool
			router := chi.NewRouter()
			router.Get("/policies/{policy_id}", func(w http.ResponseWriter, r *http.Request) {
				got, ok = bindUUIDPath(w, r, "policy_id")
			})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/policies/"+tt.value, nil))

			if ok != tt.wantOK {
				t.Fatalf("bindUUIDPath(%q) ok = %v, ожидалось %v", tt.value, ok, tt.wantOK)
			}
			if ok && got != tt.value {
				t.Errorf("bindUUIDPath(%q) = %q", tt.value, got)
			}
			if !ok && errorCode(t, rec) != "VALIDATION_ERROR" {
				t.Errorf("ожидался код VALIDATION_ERROR")
			}
		})
	}
}

func TestBindPagination(t *testing.T) {
	tests := []struct {
		query      string
		wantOK     bool
		wantLimit  int
		wantOffset int
	}{
		{"", true, 100, 0},
		{"limit=10&offset=30", true, 10, 30},
		{"limit=abc", false, 0, 0},
		{"offset=1.5", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			limit, offset, ok := bindPagination(rec, httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, ожидалось %v", ok, tt.wantOK)
			}
			if ok && (limit != tt.wantLimit || offset != tt.wantOffset) {
				t.Errorf("(%d, %d), ожидалось (%d, %d)", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
