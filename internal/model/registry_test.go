package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

type registryModel struct {
	ID   int64  `serde:"id,pk"`
	Name string `serde:"name"`
}

func (*registryModel) ModelLabel() string { return "test.registry" }

func TestRegistry(t *testing.T) {
	require.NoError(t, Register(&registryModel{}))
	defer Unregister("test.registry")

	assert.ErrorIs(t, Register(&registryModel{}), merr.ErrModelDuplicate)

	s, err := Lookup("test.registry")
	require.NoError(t, err)
	assert.Equal(t, "test.registry", s.Label)

	_, err = Lookup("test.ghost")
	assert.ErrorIs(t, err, merr.ErrModelNotFound)

	inst, err := New("test.registry")
	require.NoError(t, err)
	_, ok := inst.(*registryModel)
	assert.True(t, ok)

	assert.Contains(t, Labels(), "test.registry")
}
