package enums

// UserRole is the storefront-wide role carried in access tokens.
type UserRole string

const (
	UserRoleCustomer UserRole = "CUSTOMER"
	UserRoleAdmin    UserRole = "ADMIN"
)

var userRoles = []UserRole{UserRoleCustomer, UserRoleAdmin}

func (r UserRole) String() string { return string(r) }
func (r UserRole) IsValid() bool  { return member(userRoles, r) }

// ParseUserRole ignores case and surrounding whitespace.
func ParseUserRole(value string) (UserRole, error) {
	return parseUpper(userRoles, "user role", value)
}
