package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

/*
HashCredential and VerifyCredential protect secrets stored at rest:
the deployment's publish credential (PUBLISH_CREDENTIAL_HASH, checked
by the publication route, the only caller in this module). Nothing is
stored in the clear; the bcrypt hash is compared
against a value re-entered at request time rather than decrypted, so a
stolen database dump doesn't leak usable credentials.
*/
func HashCredential(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(h), nil
}

func VerifyCredential(hash, plaintext string) bool {
	if hash == "" || plaintext == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
