package model

// Role is an RBAC role together with the permission codes it grants.
type Role struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}
