package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"harborplan/internal/eval"
	"harborplan/internal/model"
	"harborplan/internal/opt"
	"harborplan/internal/planner"
	"harborplan/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const maxBodyBytes = 8 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// decodeBody reads a JSON body into v and answers 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// errorStatus maps domain errors to a status code and problem title.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, opt.ErrUnknownStrategy):
		return http.StatusBadRequest, "Unknown strategy"
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, eval.ErrInvalidWeights):
		return http.StatusBadRequest, "Invalid weights"
	case errors.Is(err, store.ErrInvalidSolution):
		return http.StatusBadRequest, "Invalid solution"
	case errors.Is(err, planner.ErrNoStrategyCompleted):
		return http.StatusUnprocessableEntity, "No strategy completed"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Conflict"
	}
	return http.StatusInternalServerError, "Internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := errorStatus(err)
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}
