// Package httpx writes JSON and RFC7807 problem responses.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ContentTypeProblem is the media type of problem responses.
const ContentTypeProblem = "application/problem+json"

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, "application/json", status, data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	WriteProblem(w, ProblemDetail{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// WriteProblem sends p as is.
func WriteProblem(w http.ResponseWriter, p ProblemDetail) {
	writeJSON(w, ContentTypeProblem, p.Status, p)
}

// DecodeJSON decodes the request body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func writeJSON(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
