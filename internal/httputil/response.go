package httputil

import (
	"encoding/json"
	"net/http"
)

// RespondJSON writes a JSON response with the given status code.
// It handles encoding errors safely by marshaling first, preventing
// partial responses if encoding fails after headers are sent.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// RespondXML writes an XML document response.
func RespondXML(w http.ResponseWriter, status int, content string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(content))
}

// ProblemDetail represents an RFC 7807 Problem Details response
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, status int, detail string) {
	problem := ProblemDetail{
		Type:   errorTypeFromStatus(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}

	payload, err := json.Marshal(problem)
	if err != nil {
		// Fallback to plain text if JSON encoding fails
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	w.Write(payload)
}

// errorTypeFromStatus returns the RFC 7807 type URI for a status code
func errorTypeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.1"
	case http.StatusForbidden:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.3"
	case http.StatusNotFound:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.4"
	case http.StatusInternalServerError:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.1"
	default:
		return "about:blank"
	}
}
