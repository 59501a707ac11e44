// Package types holds the wire shapes shared by the bridge's HTTP handlers.
package types

// OAuthError is the error body returned by every auth endpoint. Error is a
// machine-readable kind; ErrorDescription is for humans.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse is the success body of the callback endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}
