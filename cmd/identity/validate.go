package identity

import (
	"strings"

	"waypoint/cmd/security/password"
)

// checkCreateInput trims and validates CreateUserInput shared by all stores.
func checkCreateInput(op string, in CreateUserInput) (username, email string, err error) {
	username = strings.TrimSpace(in.Username)
	email = strings.TrimSpace(in.Email)

	if username == "" {
		return "", "", invalid(op, "username is required")
	}
	if email == "" {
		return "", "", invalid(op, "email is required")
	}
	if err := checkPasswordHash(op, in.PasswordHash); err != nil {
		return "", "", err
	}
	return username, email, nil
}

// checkPasswordHash refuses anything the hasher cannot parse. This keeps
// plaintext (or corrupted values) out of storage.
func checkPasswordHash(op, hash string) error {
	if _, err := password.Inspect(hash); err != nil {
		return invalid(op, "password_hash is not an encoded hash")
	}
	return nil
}
