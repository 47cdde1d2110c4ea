// Package mail delivers the verification-code emails over SMTP.
package mail
