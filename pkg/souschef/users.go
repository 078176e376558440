package souschef

import (
	"context"
	"net/http"

	"github.com/illmade-knight/go-resourcesync/pkg/cache"
	"github.com/illmade-knight/go-resourcesync/pkg/invalidation"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/illmade-knight/go-resourcesync/pkg/syncengine"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
)

type UserService struct {
	engine *syncengine.Engine
}

// Me watches the signed-in user's profile. While nobody is signed in it
// settles as an auth error without calling the server.
func (s *UserService) Me() (*Watch[User], error) {
	sub, err := s.engine.Read(resource.CurrentUser(), s.meFetcher())
	if err != nil {
		return nil, err
	}
	return newWatch[User](sub), nil
}

func (s *UserService) meFetcher() cache.Fetcher {
	return s.engine.Authenticated(itemFetcher[User](s.engine.Sender(), apiPrefix+"/users/me"))
}

// Delete removes the user's account and everything they own. Every cached
// entry is cleared once the server confirms.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := requireID(resource.Users, id); err != nil {
		return err
	}
	return s.engine.Mutate(ctx, invalidation.Delete(resource.Users, id), func(ctx context.Context, sender transport.Sender) error {
		return sender.Send(ctx, transport.Request{Method: http.MethodDelete, Path: itemPath(resource.Users, id)}, nil)
	})
}
