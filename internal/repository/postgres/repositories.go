package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts      *AccountRepository
	OneTimeTokens *OneTimeTokenRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(db pgDB) *Repositories {
	return &Repositories{
		Accounts:      NewAccountRepository(db),
		OneTimeTokens: NewOneTimeTokenRepository(db),
	}
}
