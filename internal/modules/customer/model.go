// README: Minimal customer record referenced by bookings.
package customer

import "taxidispatch/internal/modules/account"

type Customer struct {
	account.Credentials
	Name    string
	Address string
	Phone   string
	Email   string
}
