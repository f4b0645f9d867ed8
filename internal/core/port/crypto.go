package port

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator enforces password strength requirements.
// userInputs are penalised when they appear in the password (email, vendor name).
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// SecretSealer encrypts small secrets before they are persisted.
type SecretSealer interface {
	Seal(plaintext []byte, associatedData []byte) ([]byte, error)
	Open(sealed []byte, associatedData []byte) ([]byte, error)
}
