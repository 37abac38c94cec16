package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/okian/scoreboard/internal/domain/model"
)

const maxBodyBytes = 1 << 16

// envelope is the body of every JSON response except /healthz.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError renders err with the status its kind maps to. Storage failures
// are reported without their cause.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = internalMessage
	}
	writeJSON(w, status, envelope{Success: false, Message: msg, Kind: kind})
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrValidation, fmt.Sprintf(format, args...))
}

// decodeBody reads a JSON object into fields keyed by name, leaving values
// raw so numbers can be checked strictly.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return validation("unreadable body")
	}
	if len(body) > maxBodyBytes {
		return validation("body too large")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		return validation("malformed JSON body")
	}
	return nil
}

// maxExactFloat is the largest magnitude a float64 holds without skipping
// integers.
const maxExactFloat = 1 << 53

// parseInteger accepts a JSON number literal holding a whole number that
// fits in int64. Integer literals are exact over the full int64 range;
// fraction or exponent forms such as 100.0 or 1e2 are accepted when whole
// and within ±2^53. Strings, booleans and null are rejected.
func parseInteger(field string, raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, validation("%s is required", field)
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, validation("%s must be a number", field)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, strconv.ErrRange):
		return 0, validation("%s is out of range", field)
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	switch {
	case err != nil && !errors.Is(err, strconv.ErrRange):
		return 0, validation("%s must be a number", field)
	case err != nil, math.Abs(f) > maxExactFloat:
		return 0, validation("%s is out of range", field)
	case f != math.Trunc(f):
		return 0, validation("%s must be an integer", field)
	}
	return int64(f), nil
}

// queryInt reads a positive integer query parameter. present reports whether
// the parameter was given at all.
func queryInt(r *http.Request, name string) (n int, present, ok bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, false, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, true, false
	}
	return v, true, true
}
