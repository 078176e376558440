// Package souschef exposes the recipes, wines and user operations of the
// SousChef backend on top of the sync engine.
package souschef

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/cache"
	"github.com/illmade-knight/go-resourcesync/pkg/invalidation"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/illmade-knight/go-resourcesync/pkg/syncengine"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
)

const apiPrefix = "/api/v1"

// Client groups the per-collection services.
type Client struct {
	Recipes *RecipeService
	Wines   *WineService
	Users   *UserService

	engine *syncengine.Engine
}

func NewClient(engine *syncengine.Engine) (*Client, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	return &Client{
		Recipes: &RecipeService{engine: engine},
		Wines:   &WineService{engine: engine},
		Users:   &UserService{engine: engine},
		engine:  engine,
	}, nil
}

// Engine returns the underlying sync engine.
func (c *Client) Engine() *syncengine.Engine { return c.engine }

// Warm loads both listings and the profile concurrently. The returned
// subscriptions keep them cached until closed.
func (c *Client) Warm(ctx context.Context) ([]*cache.Subscription, error) {
	return c.engine.Warm(ctx,
		syncengine.Prefetch{Key: resource.List(resource.Recipes), Fetch: listFetcher[Recipe](c.engine, resource.Recipes)},
		syncengine.Prefetch{Key: resource.List(resource.Wines), Fetch: listFetcher[Wine](c.engine, resource.Wines)},
		syncengine.Prefetch{Key: resource.CurrentUser(), Fetch: c.Users.meFetcher()},
	)
}

func collectionPath(c resource.Collection) string {
	return apiPrefix + "/" + string(c) + "/"
}

func itemPath(c resource.Collection, id string) string {
	return apiPrefix + "/" + string(c) + "/" + url.PathEscape(id)
}

var errUnrecognizedPayload = errors.New("unrecognized payload shape")

func checkShape[T entity](v T) error {
	if v.entityID() == "" {
		return apierror.Wrap(apierror.KindUnknown, errUnrecognizedPayload)
	}
	return nil
}

func listFetcher[T entity](e *syncengine.Engine, c resource.Collection) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		var out []T
		req := transport.Request{Method: http.MethodGet, Path: collectionPath(c)}
		if err := e.Sender().Send(ctx, req, &out); err != nil {
			return nil, err
		}
		for _, v := range out {
			if err := checkShape(v); err != nil {
				return nil, err
			}
		}
		if out == nil {
			out = []T{}
		}
		return out, nil
	}
}

func itemFetcher[T entity](sender transport.Sender, path string) cache.Fetcher {
	get := syncengine.Get[T](sender, path)
	return func(ctx context.Context) (any, error) {
		v, err := get(ctx)
		if err != nil {
			return nil, err
		}
		item := v.(T)
		if err := checkShape(item); err != nil {
			return nil, err
		}
		return item, nil
	}
}

func watchList[T entity](e *syncengine.Engine, c resource.Collection) (*Watch[[]T], error) {
	sub, err := e.Read(resource.List(c), listFetcher[T](e, c))
	if err != nil {
		return nil, err
	}
	return newWatch[[]T](sub), nil
}

func watchItem[T entity](e *syncengine.Engine, c resource.Collection, id string) (*Watch[T], error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("an id is required to read %s", c))
	}
	sub, err := e.Read(resource.Detail(c, id), itemFetcher[T](e.Sender(), itemPath(c, id)))
	if err != nil {
		return nil, err
	}
	return newWatch[T](sub), nil
}

// mutateEntity sends req under d and decodes the entity the server returns.
func mutateEntity[T entity](ctx context.Context, e *syncengine.Engine, d invalidation.Descriptor, req transport.Request) (T, error) {
	var out T
	err := e.Mutate(ctx, d, func(ctx context.Context, sender transport.Sender) error {
		if err := sender.Send(ctx, req, &out); err != nil {
			return err
		}
		return checkShape(out)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func requireID(c resource.Collection, id string) error {
	if strings.TrimSpace(id) == "" {
		return apierror.New(apierror.KindValidation, fmt.Sprintf("an id is required to change %s", c))
	}
	return nil
}

func requireImages(files []transport.File) error {
	if len(files) == 0 {
		return apierror.New(apierror.KindValidation, "at least one image is required")
	}
	return nil
}
