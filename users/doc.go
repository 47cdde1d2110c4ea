// Package users persists account records and enforces email uniqueness.
package users
