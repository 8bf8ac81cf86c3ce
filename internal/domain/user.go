package domain

// User is the current user as reported by the authentication subsystem.
// A nil *User is an anonymous request.
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username,omitempty"`
	IsSuperuser bool     `json:"is_superuser"`
	Roles       []string `json:"roles"`
}
