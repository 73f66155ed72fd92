// README: Driver record (onboarding and location updates live outside the dispatch core).
package driver

import (
	"taxidispatch/internal/modules/account"
	"taxidispatch/internal/types"
)

type Driver struct {
	account.Credentials
	Name     string
	Phone    string
	License  string
	Location types.Point
}
