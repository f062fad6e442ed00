package domain

import "strings"

// Role описывает права участника.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// RoleFor определяет роль по идентификатору и идентификатору администратора.
// Пустой идентификатор администратора не даёт прав никому.
func RoleFor(userID, adminID string) Role {
	userID = strings.TrimSpace(userID)
	adminID = strings.TrimSpace(adminID)
	if adminID != "" && userID == adminID {
		return RoleAdmin
	}
	return RoleUser
}
