// Package http provides the JSON API over the loan service.
//
// This file implements utilities for parsing and validating request data.
// Loan submissions may arrive as JSON or as form-encoded bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"loanbook/internal/core"
)

const maxFormBytes = 64 << 10

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBytes+1))
	if p.err == nil && len(p.body) > maxFormBytes {
		p.err = errBodyTooLarge
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

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// First returns the first non-empty value among keys.
func (p *RequestBodyParser) First(keys ...string) string {
	for _, k := range keys {
		if v := p.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
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

// FieldErrors maps a request field to what is wrong with it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for k, v := range e {
		parts = append(parts, k+": "+v)
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// ParseLoanInput reads a loan submission. Amount is required, interest
// defaults to zero, and the start date accepts startDate or start_date.
func ParseLoanInput(p *RequestBodyParser) (core.LoanInput, error) {
	if err := p.Parse(); err != nil {
		return core.LoanInput{}, err
	}

	var in core.LoanInput
	fields := FieldErrors{}

	in.Name = p.Get("name")
	if err := core.ValidateName(in.Name); err != nil {
		fields["name"] = err.Error()
	}

	if cents, err := core.ParseDecimalToCents(p.Get("amount")); err != nil {
		fields["amount"] = err.Error()
	} else {
		in.Amount = core.Money{Cents: cents}
	}

	if raw := p.Get("interest"); raw != "" {
		if cents, err := core.ParseDecimalToCents(raw); err != nil {
			fields["interest"] = err.Error()
		} else {
			in.Interest = core.Money{Cents: cents}
		}
	}

	raw := p.First("startDate", "start_date")
	if raw == "" {
		fields["startDate"] = "required"
	} else if d, err := core.ParseDate(raw); err != nil {
		fields["startDate"] = err.Error()
	} else {
		in.StartDate = d
	}

	if len(fields) > 0 {
		return core.LoanInput{}, fields
	}
	return in, nil
}

// parseLoanID reads the {id} path segment.
func parseLoanID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid loan id %q", raw)
	}
	return id, nil
}
