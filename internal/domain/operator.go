package domain

import "time"

// OperatorRole enumerates ops API roles.
type OperatorRole string

const (
	OperatorRoleAdmin  OperatorRole = "ADMIN"
	OperatorRoleViewer OperatorRole = "VIEWER"
)

// Operator is an ops-API account able to inspect tickets and, for admins,
// force-close them when the channel is gone.
type Operator struct {
	ID           string
	Name         string
	Login        string
	PasswordHash string
	Role         OperatorRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
