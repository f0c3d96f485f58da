// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for reading and validating request data:
// JSON bodies, pagination and numeric parameters that may come either from
// the body or from the query string.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"djassa/internal/core"
)

const maxBodyBytes = 1 << 20

// errBadBody is reported when a body is not valid JSON for the expected shape.
var errBadBody = core.Invalid("body", "Format de requête invalide")

// decodeJSON reads a JSON body into dst, rejecting unknown shapes and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Invalid("body", "Corps de requête vide")
		}
		return errBadBody
	}
	return nil
}

// PageParams holds a validated limit/offset pair.
type PageParams struct {
	Limit  int
	Offset int
}

// ParsePageParams reads limit (1-100, default 50) and offset (>= 0) from the query.
func ParsePageParams(query url.Values) (PageParams, error) {
	params := PageParams{Limit: 50}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return PageParams{}, core.Invalid("limit", "limit doit être compris entre 1 et 100")
		}
		params.Limit = n
	}
	if v := strings.TrimSpace(query.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return PageParams{}, core.Invalid("offset", "offset doit être positif")
		}
		params.Offset = n
	}
	return params, nil
}

// RequestBodyParser reads a body once and exposes its fields whether it was
// sent as JSON or form-encoded.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = errBadBody
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = errBadBody
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// intParam reads an integer named key from the body, falling back to the query string.
// The boolean is false when the parameter is absent from both.
func intParam(r *http.Request, body *RequestBodyParser, key string) (int, bool, error) {
	raw := ""
	if body != nil {
		raw = body.Get(key)
	}
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get(key))
	}
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, core.Invalid(key, key+" doit être un nombre entier")
	}
	return n, true, nil
}
