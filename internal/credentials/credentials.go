// Package credentials implements the Credentials value (C2): an immutable
// username/password/enable triple that refuses to serialize its secrets and
// derives a deterministic salted hash used as a job's ownership token.
package credentials

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Credentials holds a device login triple. It is immutable after
// construction; String/LogValue always redact Password and Enable, matching
// spec.md §4.1's security-regression warning. The JSON tags exist only so
// the queue can round-trip a job's credentials between the admission
// process and whichever worker process dequeues it (spec.md §3's "passed
// by value into the queued job") — nothing that renders Credentials for a
// human or an API response may use encoding/json directly on this type.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Enable   string `json:"enable"`
}

// New builds Credentials from HTTP Basic Auth plus an optional enable
// secret. When enable is empty it defaults to password, per spec.md §3.
func New(username, password, enable string) Credentials {
	if enable == "" {
		enable = password
	}
	return Credentials{Username: username, Password: password, Enable: enable}
}

// String never leaks Password or Enable.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: <redacted>, Enable: <redacted>}", c.Username)
}

// LogValue redacts Password and Enable when Credentials is passed to a
// slog attribute, so a stray "creds", creds in a log call can't leak them.
func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// SaltSource fetches the process-lifetime credential salt, lazily, from C1.
type SaltSource interface {
	Salt(ctx context.Context) (string, error)
}

// SaltedHash computes the 128-hex-character SHA-512 digest of
// "username:password" + salt, per spec.md §3. This is the ownership token
// stored with a job. The job record also carries the Credentials themselves,
// password included, so the worker can log in; API responses expose only
// the hash.
func (c Credentials) SaltedHash(ctx context.Context, salts SaltSource) (string, error) {
	salt, err := salts.Salt(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching credential salt: %w", err)
	}
	sum := sha512.Sum512([]byte(c.Username + ":" + c.Password + salt))
	return hex.EncodeToString(sum[:]), nil
}

// Equal performs a constant-time comparison of two salted hashes, used by
// C8's ownership check (spec.md §4.7 step 4).
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
