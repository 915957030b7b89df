package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allResources = append(append([]string(nil), Resources...), "", "brand_new_resource", "新闻")
	allActions   = []Action{Read, Write, Delete, "", "publish", "READ"}
)

func TestCan_NilRoleDenies(t *testing.T) {
	for _, res := range allResources {
		for _, act := range allActions {
			assert.False(t, Can(nil, res, act))
		}
	}
}

func TestCan_EmptyNonSystemRoleDeniesEverything(t *testing.T) {
	for _, role := range []*Role{
		{ID: "empty"},
		{ID: "empty-map", Permissions: map[string]Rule{}},
	} {
		for _, res := range allResources {
			for _, act := range allActions {
				assert.False(t, Can(role, res, act), "%s %s %s", role.ID, res, act)
			}
		}
	}
}

func TestCan_SystemRoleAllowsUnlistedResources(t *testing.T) {
	role := SuperAdmin()
	for _, res := range allResources {
		for _, act := range Actions {
			assert.True(t, Can(role, res, act), "%s %s", res, act)
		}
	}
	assert.False(t, Can(role, ResourceNews, "publish"), "unknown actions are never allowed")
}

func TestCan_ExplicitRuleWinsForSystemRole(t *testing.T) {
	role := SuperAdmin()
	role.Permissions[ResourceBackup] = Rule{Read: true}

	assert.True(t, Can(role, ResourceBackup, Read))
	assert.False(t, Can(role, ResourceBackup, Write))
	assert.False(t, Can(role, ResourceBackup, Delete))
	assert.True(t, Can(role, ResourceUsers, Delete))
}

func TestCan_Editor(t *testing.T) {
	role := Editor()

	assert.True(t, Can(role, ResourceNews, Read))
	assert.True(t, Can(role, ResourceNews, Write))
	assert.False(t, Can(role, ResourceNews, Delete))
	assert.True(t, Can(role, ResourceMessages, Read))
	assert.False(t, Can(role, ResourceMessages, Write))
	assert.False(t, Can(role, ResourceUsers, Read))
	assert.False(t, Can(role, "brand_new_resource", Read))
}

func TestParseRoles(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`{"id":"super_admin","name":"超级管理员","isSystem":true,"permissions":{}}`),
		json.RawMessage(`{"id":"editor","permissions":{"news":{"read":true,"write":true,"delete":false}}}`),
		json.RawMessage(`{"name":"no id"}`),
	}

	roles, err := ParseRoles(records)
	require.NoError(t, err)
	require.Len(t, roles, 2)

	assert.True(t, Can(Find(roles, "super_admin"), ResourceRoles, Delete))
	assert.True(t, Can(Find(roles, "editor"), ResourceNews, Write))
	assert.False(t, Can(Find(roles, "editor"), ResourceProjects, Read))
	assert.Nil(t, Find(roles, "ghost"))
	assert.False(t, Can(Find(roles, "ghost"), ResourceNews, Read))

	_, err = ParseRoles([]json.RawMessage{json.RawMessage(`"just a string"`)})
	assert.Error(t, err)
}

func TestParseRoles_SkipsMalformedRecords(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`"bad"`),
		json.RawMessage(`{"id":"hr","permissions":{"jobs":{"read":true,"write":true}}}`),
		json.RawMessage(`[1,2]`),
	}

	roles, err := ParseRoles(records)
	assert.ErrorContains(t, err, "role 0")
	assert.ErrorContains(t, err, "role 2")
	require.Len(t, roles, 1)
	assert.True(t, Can(Find(roles, "hr"), ResourceJobs, Write))
}
