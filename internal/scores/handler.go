package scores

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler routes score lookups:
//
//	GET /api/scores/{beneficiary_id}
//	GET /healthz
func Handler(t *Table) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scores/{beneficiary_id}", lookupHandler(t))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "scores": t.Len()})
	})
	return mux
}

func lookupHandler(t *Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("beneficiary_id")
		e, err := t.Get(id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "no score for beneficiary "+id)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
