// Package jsonapi provides lightweight JSON:API 1.1 envelope types and
// rendering helpers, including the mapping from domain error kinds to HTTP
// statuses.
package jsonapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/d9705996/steward/internal/apperr"
)

const contentType = "application/vnd.api+json"

// ---- Document types -------------------------------------------------------

// Document is a JSON:API single-resource document.
type Document struct {
	Data     any    `json:"data"`
	Included []any  `json:"included,omitempty"`
	Meta     Meta   `json:"meta,omitempty"`
	Links    *Links `json:"links,omitempty"`
}

// ListDocument is a JSON:API collection document.
type ListDocument struct {
	Data     []any       `json:"data"`
	Included []any       `json:"included,omitempty"`
	Meta     Meta        `json:"meta,omitempty"`
	Links    *Links      `json:"links,omitempty"`
	Paging   *Pagination `json:"page,omitempty"`
}

// ResourceObject is the canonical JSON:API resource object.
type ResourceObject struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    any                     `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
	Links         *Links                  `json:"links,omitempty"`
	Meta          Meta                    `json:"meta,omitempty"`
}

// Relationship represents a JSON:API relationship object.
type Relationship struct {
	Data  any    `json:"data,omitempty"`
	Links *Links `json:"links,omitempty"`
}

// Links holds JSON:API link objects.
type Links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
	First   string `json:"first,omitempty"`
	Last    string `json:"last,omitempty"`
	Prev    string `json:"prev,omitempty"`
	Next    string `json:"next,omitempty"`
}

// Meta is a free-form map of non-standard meta-information.
type Meta map[string]any

// Pagination holds JSON:API page info.
type Pagination struct {
	Limit int `json:"limit,omitempty"`
	Total int `json:"total,omitempty"`
}

// ---- Error types ----------------------------------------------------------

// ErrorDocument is a JSON:API error response document.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// ErrorObject represents a single JSON:API error.
type ErrorObject struct {
	Status string       `json:"status,omitempty"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource identifies the source of a JSON:API error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ---- Render helpers -------------------------------------------------------

// Render writes a JSON:API document to w with the given HTTP status code.
func Render(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// RenderOne writes a single-resource document.
func RenderOne(w http.ResponseWriter, status int, data any) {
	Render(w, status, Document{Data: data})
}

// RenderList writes a collection document.
func RenderList(w http.ResponseWriter, status int, data []any, pagination *Pagination) {
	if data == nil {
		data = []any{}
	}
	Render(w, status, ListDocument{Data: data, Paging: pagination})
}

// RenderError writes a single JSON:API error.
func RenderError(w http.ResponseWriter, status int, code, title, detail string) {
	RenderErrors(w, status, []ErrorObject{
		{
			Status: http.StatusText(status),
			Code:   code,
			Title:  title,
			Detail: detail,
		},
	})
}

// RenderErrors writes multiple JSON:API errors.
func RenderErrors(w http.ResponseWriter, status int, errs []ErrorObject) {
	Render(w, status, ErrorDocument{Errors: errs})
}

// RenderDomainError maps err to a status by its apperr kind and writes it.
// Validation errors produce one error object per field. Errors without a
// kind are rendered as 500 without leaking their text.
func RenderDomainError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	msg := "internal server error"
	if errors.As(err, &e) {
		msg = e.Msg
	}

	switch apperr.KindOf(err) {
	case apperr.ErrUnauthorized:
		RenderError(w, http.StatusForbidden, "forbidden", "Forbidden", msg)
	case apperr.ErrNotFound:
		RenderError(w, http.StatusNotFound, "not_found", "Not Found", msg)
	case apperr.ErrAlreadyExists:
		RenderError(w, http.StatusConflict, "already_exists", "Conflict", msg)
	case apperr.ErrInvariantViolation:
		RenderError(w, http.StatusConflict, "invariant_violation", "Conflict", msg)
	case apperr.ErrValidation:
		RenderErrors(w, http.StatusUnprocessableEntity, ValidationErrors(apperr.FieldsOf(err)))
	default:
		RenderError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", msg)
	}
}

// ValidationErrors converts field problems into error objects pointing at
// the offending attribute, sorted by field name.
func ValidationErrors(fields map[string]string) []ErrorObject {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ErrorObject, 0, len(keys))
	for _, k := range keys {
		out = append(out, ErrorObject{
			Status: http.StatusText(http.StatusUnprocessableEntity),
			Code:   "invalid_field",
			Title:  "Invalid Attribute",
			Detail: fields[k],
			Source: &ErrorSource{Pointer: "/data/attributes/" + k},
		})
	}
	if len(out) == 0 {
		out = append(out, ErrorObject{
			Status: http.StatusText(http.StatusUnprocessableEntity),
			Code:   "validation_failed",
			Title:  "Unprocessable Entity",
			Detail: "validation failed",
		})
	}
	return out
}
