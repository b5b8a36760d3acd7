// Package crypto provides team credential generation and hashing.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters recommended for interactive logins.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// teamTokenBytes yields a 43 character URL-safe token.
const teamTokenBytes = 32

// HashWithScrypt hashes an input string using scrypt with the given salt.
// Returns hex-encoded hash.
func HashWithScrypt(input, salt string) (string, error) {
	dk, err := scrypt.Key([]byte(input), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	return hex.EncodeToString(dk), nil
}

// HashTeamToken derives the stored form of a team's webhook token. The team
// id is the salt.
func HashTeamToken(teamID int64, token string) (string, error) {
	return HashWithScrypt(token, "team:"+strconv.FormatInt(teamID, 10))
}

// VerifyTeamToken reports whether token matches storedHash for the team. The
// final comparison is constant-time.
func VerifyTeamToken(teamID int64, token, storedHash string) bool {
	hash, err := HashTeamToken(teamID, token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(storedHash)) == 1
}

// NewTeamToken returns a random URL-safe webhook token.
func NewTeamToken() (string, error) {
	buf := make([]byte, teamTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate team token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewTeamID returns a random positive 31-bit team identifier.
func NewTeamID() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate team id: %w", err)
	}
	id := int64(binary.BigEndian.Uint32(buf[:]) & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	return id, nil
}

// SecretsEqual compares two shared secrets in constant time. An empty
// expected secret never matches.
func SecretsEqual(expected, provided string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
