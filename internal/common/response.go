package common

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the body for policy and validation failures.
type ErrorResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// UnauthorizedResponse is the minimal body sent when a request is rejected
// for lack of authentication.
type UnauthorizedResponse struct {
	Error string `json:"error"`
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{
		Status:    code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// RespondWithDomainError writes err using its mapped status and safe message.
func RespondWithDomainError(w http.ResponseWriter, err error) {
	RespondWithError(w, HTTPStatusFromError(err), MessageFromError(err))
}

// RespondUnauthorized writes a 401 without a WWW-Authenticate challenge so
// browsers do not pop up a native login dialog.
func RespondUnauthorized(w http.ResponseWriter) {
	RespondWithJSON(w, http.StatusUnauthorized, UnauthorizedResponse{Error: "Unauthorized access"})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
