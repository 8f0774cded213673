// Package auth provides the identity core of the blog backend: signed access
// tokens, identity resolution against the account store and the HTTP error
// contract shared by every gate.
//
// Tokens:
//   - TokenService issues and verifies HS256 tokens carrying the username as
//     subject and the numeric account id as the "uid" claim. Verification
//     distinguishes expired tokens from every other failure.
//
// Identity resolution:
//   - IdentityResolver turns verified claims into an Identity by reading the
//     store on every call. A token whose uid no longer matches the stored
//     account is rejected, so a deleted and recreated username cannot reuse
//     old tokens.
//   - Users is the bun backed store, MemoryIdentityStore the in-memory one.
//
// Gates:
//   - middleware/jwtware binds the identity, middleware/accountstatus rejects
//     disabled accounts and middleware/limitware throttles mutating requests.
//     Rejections are rendered by WriteError with the bodies clients rely on.
//
// Activity sinks:
//   - ActivitySink is a best effort audit emitter used by Auther for login and
//     account status events. Sink errors are logged, never returned.
package auth
