// Package keys provides principal strings and change-record signers.
//
// A principal is an opaque string to the registry. The helpers here produce
// the self-certifying form "<algorithm>:<base64 public key>", which lets a
// verifier check a record signature without a key directory.
//
// Seeds are 32 bytes, stored hex-encoded one per file under a KeyStore
// directory. Purpose-specific seeds (for example the journal signing key) are
// derived from a root seed so only the root needs backing up.
package keys
