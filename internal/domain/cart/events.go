package cart

import "time"

const (
	EventCheckedOut = "CartCheckedOut"
)

// CheckedOut is appended to the change feed when a cart is converted into
// purchases or borrows.
type CheckedOut struct {
	CartID       string    `json:"cart_id"`
	UserID       string    `json:"user_id"`
	Variant      Variant   `json:"variant"`
	Items        []Item    `json:"items"`
	Totals       Totals    `json:"totals"`
	CheckedOutAt time.Time `json:"checked_out_at"`
}
