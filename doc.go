// Package mailauth provides an email-based two-factor authentication engine
// with JWT access tokens, rotating session-bound refresh tokens, Redis-backed
// session and one-time-code storage, and fixed-window rate limiting.
//
// The flow it implements is password login followed by a 6-digit code
// delivered by email: Login verifies credentials and triggers code delivery,
// VerifyCode checks the code and is the only path that establishes an
// authenticated session.
//
// # Architecture boundaries
//
// mailauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, AuthResult, SessionInfo, MetricsSnapshot).
// Flow coordination, the OTP code store, rate limiting, and audit dispatch
// live under internal/ and are never exported. Primitives with independent
// utility keep their own public packages: [jwt] for signed tokens,
// [password] for Argon2id hashing, [session] for the session registry,
// [users] for the credential store, [mail] for delivery transports.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store encodings, or raw OTP codes in its public
//     API. Codes travel only through the configured [mail.Mailer].
//   - Store raw client IP addresses. Sessions persist a salted hash.
//   - Panic across the Engine boundary. Expected failures are sentinel
//     errors; only unreachable-store conditions surface as wrapped errors.
package mailauth
