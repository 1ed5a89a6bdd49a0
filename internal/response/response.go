// Package response builds OData wire responses: JSON envelopes, the
// error document, and OData URL parsing.
package response

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	// ODataVersionValue is advertised on every response.
	ODataVersionValue = "4.0"
	// HeaderODataVersion is written with exact capitalization; Go's
	// canonical form would produce "Odata-Version".
	HeaderODataVersion = "OData-Version"

	contentTypeJSON = "application/json;odata.metadata=minimal"
)

// SetODataVersionHeader sets the OData-Version header with the correct
// capitalization.
func SetODataVersionHeader(w http.ResponseWriter) {
	w.Header()[HeaderODataVersion] = []string{ODataVersionValue}
}

// Collection is the JSON envelope of a list response.
type Collection struct {
	Context string      `json:"@odata.context"`
	Count   *int64      `json:"@odata.count,omitempty"`
	Value   interface{} `json:"value"`
}

// ErrorDetail is an entry of the details array of an error document.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// InnerError carries nested diagnostic information.
type InnerError struct {
	Message    string      `json:"message,omitempty"`
	TypeName   string      `json:"type,omitempty"`
	InnerError *InnerError `json:"innererror,omitempty"`
}

// Error is the OData v4 error document body.
type Error struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Target     string        `json:"target,omitempty"`
	Details    []ErrorDetail `json:"details,omitempty"`
	InnerError *InnerError   `json:"innererror,omitempty"`
}

// WriteJSON writes a JSON body with the OData content type and version
// header.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", contentTypeJSON)
	SetODataVersionHeader(w)
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(body)
}

// WriteError writes an error document with the given code and message.
func WriteError(w http.ResponseWriter, status int, code string, message string) error {
	return WriteODataError(w, status, &Error{Code: code, Message: message})
}

// WriteODataError writes a fully populated error document.
func WriteODataError(w http.ResponseWriter, status int, odataError *Error) error {
	return WriteJSON(w, status, map[string]interface{}{"error": odataError})
}

// ContextURL builds the @odata.context value for an entity set. For
// single-entity responses the $entity suffix is appended.
func ContextURL(basePath, entitySet string, entity bool) string {
	base := strings.TrimSuffix(basePath, "/")
	url := base + "/$metadata#" + entitySet
	if entity {
		url += "/$entity"
	}
	return url
}
