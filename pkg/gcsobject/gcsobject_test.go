package gcsobject_test

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-resourcesync/pkg/gcsobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewClientAdapter(t *testing.T) {
	t.Run("nil client yields nil", func(t *testing.T) {
		assert.Nil(t, gcsobject.NewClientAdapter(nil))
	})

	t.Run("wraps a storage client", func(t *testing.T) {
		client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		adapter := gcsobject.NewClientAdapter(client)

		require.NotNil(t, adapter)
		assert.NotNil(t, adapter.Bucket("cellar").Object("labels/rioja.png"))
	})
}
