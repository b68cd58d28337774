// Package auth issues and verifies the bearer tokens used by the valvectl API.
//
// Tokens are HS256 JWTs carrying a subject and a role. There is no user
// database: an operator mints tokens with `valvectl token` using the same
// secret the server is configured with.
//
// Two roles exist. A viewer may read history and stream operation logs; an
// operator may also start and stop valve operations.
package auth
