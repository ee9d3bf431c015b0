// Package handler contains HTTP handlers grouped by resource.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/d9705996/steward/internal/api/jsonapi"
	"github.com/d9705996/steward/internal/api/middleware"
	"github.com/d9705996/steward/internal/location"
)

// Path wildcards shared by the router and the handlers.
const (
	ParamUser         = "userID"
	ParamLocation     = "locationID"
	ParamNotification = "notificationID"
	ParamType         = "type"
)

// decode reads a JSON request body into v. An empty body leaves v untouched.
// On failure it writes a 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
	return false
}

func companyID(r *http.Request) string { return r.PathValue(middleware.CompanyParam) }

func actor(r *http.Request) string { return middleware.ActorFromContext(r.Context()) }

// renderErr writes err as a JSON:API error. Deleting a location that still
// has users is reported as 422 rather than the generic 409.
func renderErr(w http.ResponseWriter, err error) {
	if errors.Is(err, location.ErrLocationHasUsers) {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "location_has_users", "Unprocessable Entity", location.ErrLocationHasUsers.Msg)
		return
	}
	jsonapi.RenderDomainError(w, err)
}

func list[T any](items []T, conv func(T) jsonapi.ResourceObject) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = conv(items[i])
	}
	return out
}
