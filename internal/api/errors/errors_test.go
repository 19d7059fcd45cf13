package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteErrorFormat(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"validation", func(w http.ResponseWriter) { ValidationError(w, "m") }, http.StatusBadRequest, CodeValidationError},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "m") }, http.StatusNotFound, CodeNotFound},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "m") }, http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "m") }, http.StatusForbidden, CodeForbidden},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, CodeInvalidTransition, "m") }, http.StatusConflict, CodeInvalidTransition},
		{"locked", func(w http.ResponseWriter) { Locked(w, "m") }, http.StatusLocked, CodeBlockedByLegalHold},
		{"blob store", func(w http.ResponseWriter) { BlobStoreUnavailable(w, "m") }, http.StatusBadGateway, CodeBlobStoreUnavailable},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "m") }, http.StatusServiceUnavailable, CodeServiceNotInitialized},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "m") }, http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, ожидалось application/json", ct)
			}

			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("декодирование тела: %v", err)
			}
			if body.Error.Code != tt.wantCode || body.Error.Message != "m" {
				t.Errorf("тело = %+v, ожидался код %s", body.Error, tt.wantCode)
			}
		})
	}
}
