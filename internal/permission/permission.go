// Package permission decides which admin-panel operations a role may perform.
package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

type Action string

const (
	Read   Action = "read"
	Write  Action = "write"
	Delete Action = "delete"
)

// Actions lists every action the gate knows about.
var Actions = []Action{Read, Write, Delete}

// Resources managed from the admin panel.
const (
	ResourceNews     = "news"
	ResourceProjects = "projects"
	ResourceHonors   = "honors"
	ResourceServices = "services"
	ResourceTeam     = "team"
	ResourceJobs     = "jobs"
	ResourceMessages = "messages"
	ResourceSettings = "settings"
	ResourceUsers    = "users"
	ResourceRoles    = "roles"
	ResourceBackup   = "backup"
)

var Resources = []string{
	ResourceNews,
	ResourceProjects,
	ResourceHonors,
	ResourceServices,
	ResourceTeam,
	ResourceJobs,
	ResourceMessages,
	ResourceSettings,
	ResourceUsers,
	ResourceRoles,
	ResourceBackup,
}

// Rule holds the allowed actions for one resource.
type Rule struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

func (r Rule) allows(action Action) bool {
	switch action {
	case Read:
		return r.Read
	case Write:
		return r.Write
	case Delete:
		return r.Delete
	default:
		return false
	}
}

// Role is a named set of rules. System roles may do anything a rule does not
// explicitly forbid, which keeps them working for resources added after the
// role was created.
type Role struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	IsSystem    bool            `json:"isSystem"`
	Permissions map[string]Rule `json:"permissions"`
}

// Can reports whether role may perform action on resource. It never panics
// and denies anything it cannot positively allow.
func Can(role *Role, resource string, action Action) bool {
	if role == nil {
		return false
	}
	if rule, ok := role.Permissions[resource]; ok {
		return rule.allows(action)
	}
	return role.IsSystem && slices.Contains(Actions, action)
}

// SuperAdmin is the built-in system role.
func SuperAdmin() *Role {
	return &Role{ID: "super_admin", Name: "超级管理员", IsSystem: true, Permissions: map[string]Rule{}}
}

// Editor is the built-in content role: it edits public content, reads
// messages and cannot touch users, roles, settings or backups.
func Editor() *Role {
	return &Role{
		ID:   "editor",
		Name: "内容编辑",
		Permissions: map[string]Rule{
			ResourceNews:     {Read: true, Write: true},
			ResourceProjects: {Read: true, Write: true},
			ResourceHonors:   {Read: true, Write: true},
			ResourceServices: {Read: true, Write: true},
			ResourceTeam:     {Read: true, Write: true},
			ResourceJobs:     {Read: true, Write: true},
			ResourceMessages: {Read: true},
		},
	}
}

// ParseRoles decodes a roles collection. Records that are not role objects
// are skipped and reported together in the returned error; the roles that
// did decode are always returned.
func ParseRoles(records []json.RawMessage) ([]*Role, error) {
	var errs []error
	roles := make([]*Role, 0, len(records))
	for i, rec := range records {
		var r Role
		if err := json.Unmarshal(rec, &r); err != nil {
			errs = append(errs, fmt.Errorf("role %d: %w", i, err))
			continue
		}
		if r.ID == "" {
			continue
		}
		roles = append(roles, &r)
	}
	return roles, errors.Join(errs...)
}

// Find returns the role with id, or nil.
func Find(roles []*Role, id string) *Role {
	for _, r := range roles {
		if r.ID == id {
			return r
		}
	}
	return nil
}
