package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zillionare/backtesting/internal/models"
)

// Response is the JSON envelope for every endpoint. Status is "success" or
// "failed"; Code carries the stable machine code on failure.
type Response struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{Status: "success", Data: data})
}

// WriteError writes a failure envelope. Trade errors keep their machine
// code; authorization failures map to 401 and infrastructure failures to
// 500, everything else stays a 200 so clients route on the envelope.
func WriteError(w http.ResponseWriter, err error) {
	te, ok := models.AsTradeError(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, Response{
			Status: "failed", Code: models.CodePersistence, Message: err.Error(),
		})
		return
	}

	status := http.StatusOK
	switch {
	case te.Code == models.CodeUnauthorized:
		status = http.StatusUnauthorized
	case te.Kind == models.KindInfra:
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, Response{Status: "failed", Code: te.Code, Message: te.Message})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteJSON(w, http.StatusMethodNotAllowed, Response{
		Status: "failed", Message: "method not allowed",
	})
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Status: "failed", Message: "request body is required",
		})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Status: "failed", Message: "invalid JSON: " + err.Error(),
		})
		return false
	}
	return true
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return auth
}
