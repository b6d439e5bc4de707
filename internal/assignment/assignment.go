package assignment

import (
	"github.com/google/uuid"
)

// Role — закрытый набор ролей. Сравнение всегда по константам,
// строки из внешнего мира проходят через ParseRole.
type Role string

const (
	RoleEmployer       Role = "Employer"
	RoleEmployee       Role = "Employee"
	RoleAdmin          Role = "Admin"
	RoleSeniorEmployer Role = "SeniorEmployer"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleEmployer, RoleEmployee, RoleAdmin, RoleSeniorEmployer:
		return Role(s), true
	}
	return "", false
}

// Subject — всё, что матрице назначений нужно знать о пользователе.
type Subject struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Role         Role
	DepartmentID *uuid.UUID
}

// CanAssign решает, может ли actor назначить задание target.
// Чистая функция, без побочных эффектов.
func CanAssign(actor, target Subject) bool {
	switch actor.Role {
	case RoleEmployer:
		// Employer назначает только внутри своего отдела и не самому себе
		if actor.ID == target.ID {
			return false
		}
		return sameDepartment(actor.DepartmentID, target.DepartmentID)
	case RoleSeniorEmployer:
		// SeniorEmployer назначает Employer-ам и сотрудникам без отдела
		return target.Role == RoleEmployer || target.DepartmentID == nil
	default:
		return false
	}
}

// VisibleAssignees возвращает ровно тех, для кого CanAssign(actor, u) == true.
func VisibleAssignees(actor Subject, users []Subject) []Subject {
	result := make([]Subject, 0, len(users))
	for _, u := range users {
		if CanAssign(actor, u) {
			result = append(result, u)
		}
	}
	return result
}

// CanAssignAnyone сообщает, есть ли у роли вообще право назначать задания.
func CanAssignAnyone(role Role) bool {
	return role == RoleEmployer || role == RoleSeniorEmployer
}

// DenyReason — текст отказа для пользователя, зависит от роли актора.
func DenyReason(role Role) string {
	switch role {
	case RoleEmployer:
		return "вы можете назначать задания только сотрудникам своего отдела"
	case RoleSeniorEmployer:
		return "вы можете назначать задания только Employer или сотрудникам без отдела"
	default:
		return "у вас нет прав для создания заданий"
	}
}

func sameDepartment(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
