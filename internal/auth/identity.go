package auth

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is the authenticated caller. Cart and checkout operations take it
// explicitly instead of reading ambient session state.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Anonymous reports whether no user is signed in
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
