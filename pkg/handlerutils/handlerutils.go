// Package handlerutils has small helpers shared by the HTTP handlers.
package handlerutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/toolfront/mcp-auth-bridge/pkg/tokens"
	"github.com/toolfront/mcp-auth-bridge/pkg/types"
)

// JSON writes obj as a JSON response with the given status.
func JSON(w http.ResponseWriter, statusCode int, obj any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if obj == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// OAuthError writes the standard error body.
func OAuthError(w http.ResponseWriter, statusCode int, kind, description string) {
	JSON(w, statusCode, types.OAuthError{Error: kind, ErrorDescription: description})
}

// CredentialError maps a validation error to its HTTP status and error kind
// and writes the response, including the WWW-Authenticate challenge on 401s.
func CredentialError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	kind := "invalid_token"
	description := "Invalid or expired token"

	switch {
	case errors.Is(err, tokens.ErrMissingCredential):
		kind = "missing_credential"
		description = "No credential provided"
	case errors.Is(err, tokens.ErrInsufficientScope):
		status = http.StatusForbidden
		kind = "insufficient_scope"
		description = err.Error()
	case errors.Is(err, tokens.ErrTokenExpired):
		description = "Token has expired"
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error="%s", error_description="%s"`, kind, description))
	}
	OAuthError(w, status, kind, description)
}

// GetClientIP extracts the client IP from the request using the
// X-Forwarded-For, X-Real-IP and RemoteAddr headers, in that order.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// GetBaseURL returns the scheme and host of the request, inferring https
// from TLS state or the X-Forwarded-Proto header.
func GetBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
