package model

type Role string

const (
	RoleHolder Role = "holder"
	RoleAdmin  Role = "admin"
)

// Actor is the identity issuing a command, as supplied by the identity provider.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

func Admin(id string) Actor {
	return Actor{ID: id, Role: RoleAdmin}
}

func Holder(id string) Actor {
	return Actor{ID: id, Role: RoleHolder}
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
