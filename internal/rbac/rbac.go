// Package rbac decides what a principal may do with a note.
package rbac

type Role string
type Action string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
	RoleNone         Role = "none"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return action == ActionRead || action == ActionWrite || action == ActionDelete
	case RoleCollaborator:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// RoleFor derives a principal's role on a note from its owner and collaborators.
func RoleFor(principal, owner string, collaborators []string) Role {
	if principal == "" {
		return RoleNone
	}
	if principal == owner {
		return RoleOwner
	}
	for _, id := range collaborators {
		if id == principal {
			return RoleCollaborator
		}
	}
	return RoleNone
}
