package resource_test

import (
	"testing"

	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Construction(t *testing.T) {
	t.Run("Empty token is rejected", func(t *testing.T) {
		_, err := resource.NewKey("recipes", "")
		require.Error(t, err)
	})

	t.Run("No tokens is rejected", func(t *testing.T) {
		_, err := resource.NewKey()
		require.Error(t, err)
	})

	t.Run("Detail with empty id is zero", func(t *testing.T) {
		assert.True(t, resource.Detail(resource.Recipes, "").IsZero())
	})

	t.Run("Tokens are copied", func(t *testing.T) {
		k := resource.Detail(resource.Wines, "3")
		tokens := k.Tokens()
		tokens[0] = "mutated"
		assert.Equal(t, resource.Wines, k.Collection())
	})
}

func TestKey_Relations(t *testing.T) {
	list := resource.List(resource.Recipes)
	detail := resource.Detail(resource.Recipes, "7")
	other := resource.Detail(resource.Wines, "7")

	assert.True(t, list.IsPrefixOf(detail), "a listing is an ancestor of its items")
	assert.True(t, detail.IsPrefixOf(detail), "a key is a prefix of itself")
	assert.False(t, detail.IsPrefixOf(list))
	assert.False(t, list.IsPrefixOf(other))
	assert.False(t, resource.Key{}.IsPrefixOf(list), "the zero key matches nothing")

	again, err := resource.NewKey("recipes", "7")
	require.NoError(t, err)
	assert.True(t, detail.Equal(again))
	assert.Equal(t, detail.ID(), again.ID())
	assert.NotEqual(t, list.ID(), detail.ID())
	assert.Equal(t, "(recipes, 7)", detail.String())
	assert.Equal(t, "(users, me)", resource.CurrentUser().String())
}
