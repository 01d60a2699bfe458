// Package clients provides a Go client for the certificate trust HTTP API.
//
// Errors answered by the server are returned as *APIError, which unwraps to
// the matching interfaces sentinel (ErrForbidden, ErrInsufficientFunds, ...).
package clients
