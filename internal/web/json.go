package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sweeney/homekit-gate/internal/model"
)

// Error is the body of every non-2xx API response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeForbidden  = "forbidden"
	ErrCodeInvalid    = "invalid_value"
	ErrCodeInternal   = "internal_error"
)

// CharacteristicJSON is one characteristic in API responses.
type CharacteristicJSON struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
	Perms []string    `json:"perms"`
}

// ValueRequest is the body of PUT /api/characteristics/{name}.
type ValueRequest struct {
	Value interface{} `json:"value"`
}

// TargetRequest is the body of PUT /api/door/target and /api/lock/target.
type TargetRequest struct {
	Target string `json:"target"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownCharacteristic):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, model.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, model.ErrInvalidValue):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalid, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func permNames(p model.Perm) []string {
	var out []string
	if p.Has(model.PermRead) {
		out = append(out, "read")
	}
	if p.Has(model.PermWrite) {
		out = append(out, "write")
	}
	if p.Has(model.PermEvents) {
		out = append(out, "events")
	}
	return out
}
