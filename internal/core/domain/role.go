package domain

// Role is carried in bearer tokens issued by the external auth service.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

