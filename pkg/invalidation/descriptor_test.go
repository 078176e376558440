package invalidation_test

import (
	"testing"

	"github.com/illmade-knight/go-resourcesync/pkg/invalidation"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/stretchr/testify/assert"
)

func TestDescriptor_Invalidates(t *testing.T) {
	testCases := []struct {
		name string
		desc invalidation.Descriptor
		want []resource.Key
	}{
		{
			name: "create invalidates the listing",
			desc: invalidation.Create(resource.Recipes),
			want: []resource.Key{resource.List(resource.Recipes)},
		},
		{
			name: "update invalidates the item and the listing",
			desc: invalidation.Update(resource.Wines, "3"),
			want: []resource.Key{resource.Detail(resource.Wines, "3"), resource.List(resource.Wines)},
		},
		{
			name: "delete invalidates the item and the listing",
			desc: invalidation.Delete(resource.Recipes, "7"),
			want: []resource.Key{resource.Detail(resource.Recipes, "7"), resource.List(resource.Recipes)},
		},
		{
			name: "user delete clears instead",
			desc: invalidation.Delete(resource.Users, "u1"),
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.desc.Invalidates()
			assert.Len(t, got, len(tc.want))
			for i := range tc.want {
				assert.True(t, tc.want[i].Equal(got[i]), "key %d: want %s, got %s", i, tc.want[i], got[i])
			}
		})
	}
}

func TestDescriptor_ClearsAll(t *testing.T) {
	assert.True(t, invalidation.Delete(resource.Users, "u1").ClearsAll())
	assert.False(t, invalidation.Delete(resource.Recipes, "1").ClearsAll())
	assert.False(t, invalidation.Create(resource.Wines).ClearsAll())
}

func TestDescriptor_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		desc    invalidation.Descriptor
		wantErr bool
	}{
		{name: "create", desc: invalidation.Create(resource.Recipes)},
		{name: "update", desc: invalidation.Update(resource.Recipes, "1")},
		{name: "user delete", desc: invalidation.Delete(resource.Users, "u1")},
		{name: "update without id", desc: invalidation.Update(resource.Recipes, ""), wantErr: true},
		{name: "delete without id", desc: invalidation.Delete(resource.Wines, ""), wantErr: true},
		{name: "create with id", desc: invalidation.Descriptor{Operation: invalidation.OpCreate, Collection: resource.Wines, TargetID: "1"}, wantErr: true},
		{name: "unknown collection", desc: invalidation.Create("cocktails"), wantErr: true},
		{name: "unknown operation", desc: invalidation.Descriptor{Operation: "upsert", Collection: resource.Wines}, wantErr: true},
		{name: "user update", desc: invalidation.Update(resource.Users, "u1"), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.desc.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
