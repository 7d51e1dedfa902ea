// Package authz holds the action permission table.
package authz

import "errors"

// Role of the caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Action is an operation a caller can perform.
type Action string

const (
	ViewCart        Action = "cart:view"
	EditCart        Action = "cart:edit"
	PlaceOrder      Action = "order:place"
	ViewOwnOrders   Action = "order:view_own"
	ViewAllOrders   Action = "order:view_all"
	UpdateStatus    Action = "order:update_status"
	UpdatePayment   Action = "order:update_payment"
	ManageCatalogue Action = "catalogue:manage"
)

var ErrForbidden = errors.New("action not permitted for role")

var table = map[Action]map[Role]bool{
	ViewCart:        {RoleCustomer: true},
	EditCart:        {RoleCustomer: true},
	PlaceOrder:      {RoleCustomer: true},
	ViewOwnOrders:   {RoleCustomer: true, RoleAdmin: true},
	ViewAllOrders:   {RoleAdmin: true},
	UpdateStatus:    {RoleAdmin: true},
	UpdatePayment:   {RoleAdmin: true},
	ManageCatalogue: {RoleAdmin: true},
}

// ParseRole maps a header value to a Role; empty means customer.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "", RoleCustomer:
		return RoleCustomer, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Allowed reports whether role may perform action. Unknown actions are denied.
func Allowed(action Action, role Role) bool {
	return table[action][role]
}

// Check is Allowed as an error.
func Check(action Action, role Role) error {
	if !Allowed(action, role) {
		return ErrForbidden
	}
	return nil
}
