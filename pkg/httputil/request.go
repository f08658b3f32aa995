package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// ParseJSON decodes the request body into dest
func ParseJSON(r *http.Request, dest interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	}
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}
	return fmt.Errorf("invalid JSON: %w", err)
}

// ParseJSONOrError decodes the body and replies 400 when it cannot
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	if err != nil {
		WriteBadRequest(w, err.Error())
	}
	return err == nil
}

// ParseID reads a positive integer identifier from the mux path variables
func ParseID(r *http.Request, key string) (int64, error) {
	raw, ok := mux.Vars(r)[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return id, nil
}

// ParseIDOrError is ParseID replying 400 on failure
func ParseIDOrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := ParseID(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return id, true
}

// Query reads typed query parameters. The first malformed value is kept
// and reported by Err; later reads still return their defaults.
type Query struct {
	values url.Values
	err    error
}

// NewQuery wraps the request's query string
func NewQuery(r *http.Request) *Query {
	return &Query{values: r.URL.Query()}
}

func (q *Query) fail(key, kind, raw string) {
	if q.err == nil {
		q.err = fmt.Errorf("invalid %s for query param %s: %s", kind, key, raw)
	}
}

// Err returns the first parse failure
func (q *Query) Err() error {
	return q.err
}

// String returns the value of key, or def when absent
func (q *Query) String(key, def string) string {
	if v := q.values.Get(key); v != "" {
		return v
	}
	return def
}

// Int returns key as an int, or def when absent or malformed
func (q *Query) Int(key string, def int) int {
	raw := q.values.Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(key, "integer", raw)
		return def
	}
	return v
}

// Int64 returns key as an int64, or nil when absent or malformed
func (q *Query) Int64(key string) *int64 {
	raw := q.values.Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.fail(key, "integer", raw)
		return nil
	}
	return &v
}

// Time returns key parsed as RFC 3339, or nil when absent or malformed
func (q *Query) Time(key string) *time.Time {
	raw := q.values.Get(key)
	if raw == "" {
		return nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.fail(key, "time", raw)
		return nil
	}
	return &v
}

// List splits a comma-separated value, dropping empty items
func (q *Query) List(key string) []string {
	var out []string
	for _, item := range strings.Split(q.values.Get(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// RequireNonEmpty replies 400 with a validation code when value is empty
func RequireNonEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if value != "" {
		return true
	}
	WriteErrorCode(w, http.StatusBadRequest, CodeValidation, fieldName+" is required")
	return false
}
