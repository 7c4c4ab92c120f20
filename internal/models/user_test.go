package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleOperador))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleGestor.AtLeast(RoleOperador))
	assert.False(t, RoleGestor.AtLeast(RoleAdmin))
	assert.False(t, RoleOperador.AtLeast(RoleGestor))
	assert.False(t, Role("audience").AtLeast(RoleOperador))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleOperador.Valid())
	assert.False(t, Role("admin").Valid())
}
