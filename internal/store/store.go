// README: Record kinds, identifier formats and field rules shared by every store backend.
package store

import (
	"fmt"
	"strconv"
	"strings"

	"taxidispatch/internal/types"
)

type Kind string

const (
	KindDriver   Kind = "driver"
	KindCustomer Kind = "customer"
	KindBooking  Kind = "booking"
)

// idWidth is the zero-padded width of the numeric part of an identifier.
// Numbers past 999 keep growing in width.
const idWidth = 3

func (k Kind) Prefix() string {
	switch k {
	case KindDriver:
		return "D"
	case KindCustomer:
		return "C"
	case KindBooking:
		return "B"
	default:
		return ""
	}
}

func FormatID(k Kind, n int) types.ID {
	return types.ID(fmt.Sprintf("%s%0*d", k.Prefix(), idWidth, n))
}

// ParseIDNumber extracts the numeric part of an identifier of kind k.
func ParseIDNumber(k Kind, id types.ID) (int, bool) {
	s, ok := strings.CutPrefix(string(id), k.Prefix())
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextID returns the identifier following the highest well-formed one in ids,
// or the first identifier when there is none.
func NextID(k Kind, ids []types.ID) types.ID {
	highest := 0
	for _, id := range ids {
		if n, ok := ParseIDNumber(k, id); ok && n > highest {
			highest = n
		}
	}
	return FormatID(k, highest+1)
}

// Delimiter separates fields in the flat record format. It is never escaped.
const Delimiter = "|"

// ValidateFields rejects values that would corrupt a delimited record.
func ValidateFields(fields ...string) error {
	for _, f := range fields {
		if strings.ContainsAny(f, Delimiter+"\r\n") {
			return fmt.Errorf("%w: %q", ErrInvalidField, f)
		}
	}
	return nil
}
