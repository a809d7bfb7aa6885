package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Two credential schemes coexist in the user collection:
//
//   - legacy: hex(sha256(password + salt)), written by the first generation
//     of the product. Still the majority of records; must keep verifying.
//   - pbkdf2: "pbkdf2$" + hex(pbkdf2-sha256(password, salt)), written by
//     anything minting credentials today.
//
// VerifyPassword dispatches on the stored prefix, so records migrate scheme
// by scheme as they are rewritten.
const (
	pbkdf2Prefix = "pbkdf2$"
	pbkdf2Iters  = 210_000
	pbkdf2KeyLen = 32
)

// HashPassword derives a pbkdf2-scheme credential for storage.
func HashPassword(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iters, pbkdf2KeyLen, sha256.New)
	return pbkdf2Prefix + hex.EncodeToString(key)
}

// VerifyPassword reports whether password+salt matches the stored credential,
// under whichever scheme the record was written with. Comparison is
// constant-time.
func VerifyPassword(stored, password, salt string) bool {
	var derived string
	if strings.HasPrefix(stored, pbkdf2Prefix) {
		derived = HashPassword(password, salt)
	} else {
		sum := sha256.Sum256([]byte(password + salt))
		derived = hex.EncodeToString(sum[:])
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(derived)) == 1
}
