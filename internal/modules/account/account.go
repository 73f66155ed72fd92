// README: Credential-bearing shape shared by customers and drivers.
package account

import "taxidispatch/internal/types"

// Account is implemented by every record that can sign in.
type Account interface {
	AccountID() types.ID
	AccountUsername() string
	AccountPasswordHash() string
}

// Credentials is embedded by Driver and Customer records.
type Credentials struct {
	ID           types.ID
	Username     string
	PasswordHash string
}

func (c Credentials) AccountID() types.ID { return c.ID }

func (c Credentials) AccountUsername() string { return c.Username }

func (c Credentials) AccountPasswordHash() string { return c.PasswordHash }
