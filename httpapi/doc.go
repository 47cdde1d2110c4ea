// Package httpapi mounts the authentication engine behind a JSON HTTP
// API. Tokens travel either as Bearer headers or as HttpOnly cookies;
// the handler sets both auth cookies after a successful two-factor
// verification and clears them on logout and password change.
package httpapi
