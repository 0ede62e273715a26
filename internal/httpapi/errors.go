package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/fca/internal/dispatch"
	"github.com/roach88/fca/internal/engine"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  status,
	})
}

// writeEngineError maps engine errors to status codes. FCAErrors keep
// their {"error":{"code":"FCAError","message":...}} shape.
func writeEngineError(w http.ResponseWriter, err error) {
	var fe *engine.FCAError
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, engine.AsErrorResult(err))
	case dispatch.IsModuleNotFound(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		writeJSONError(w, http.StatusBadGateway, err.Error())
	}
}
