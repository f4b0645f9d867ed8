package security

import (
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

const (
	defaultMinPasswordLength   = 10
	defaultMaxPasswordLength   = 128
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// DefaultPasswordValidator returns the built-in validator enforcing the service password policy
// with length, character class, and zxcvbn strength checks.
func DefaultPasswordValidator(userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(defaultMinPasswordLength),
		MaxLengthRule(defaultMaxPasswordLength),
		RequireCharacterClassesRule(defaultMinCharacterClasses),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore, userInputs...),
	)
}

// PasswordPolicy validates new passwords, penalising account-specific inputs such as the email.
type PasswordPolicy struct {
	factory func(inputs []string) *PasswordValidator
}

// NewPasswordPolicy builds the default policy.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{factory: func(inputs []string) *PasswordValidator {
		return DefaultPasswordValidator(inputs...)
	}}
}

// Validate applies the policy. Returned errors match domain.ErrValidation.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	inputs := make([]string, 0, len(userInputs))
	for _, in := range userInputs {
		if in != "" {
			inputs = append(inputs, in)
		}
	}
	return p.factory(inputs).Validate(password)
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
