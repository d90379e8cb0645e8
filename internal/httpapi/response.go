// Package httpapi implements the two user-facing query frontends: the
// memory-only candle lookup served by the ingest process, and the
// memory-then-storage quote conversion served by the quote process.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Pantilei/crypto-converter/internal/apperror"
)

// writeJSON writes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the flat {"detail": "<code>"} shape the candle query
// endpoints use for their error responses.
func writeDetail(w http.ResponseWriter, status int, code apperror.Code) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": string(code)})
}
