// Package jwt mints and validates the HS256 access and refresh tokens.
package jwt
