package souschef

import (
	"context"
	"net/http"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/attachment"
	"github.com/illmade-knight/go-resourcesync/pkg/invalidation"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/illmade-knight/go-resourcesync/pkg/syncengine"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
)

type RecipeService struct {
	engine *syncengine.Engine
}

// List watches the signed-in user's recipes.
func (s *RecipeService) List() (*Watch[[]Recipe], error) {
	return watchList[Recipe](s.engine, resource.Recipes)
}

// Get watches one recipe. An empty id is rejected without a fetch.
func (s *RecipeService) Get(id string) (*Watch[Recipe], error) {
	return watchItem[Recipe](s.engine, resource.Recipes, id)
}

// Create saves a structured recipe. The recipe listing is invalidated once the
// server has accepted it.
func (s *RecipeService) Create(ctx context.Context, in RecipeCreate) (Recipe, error) {
	if err := in.Validate(); err != nil {
		return Recipe{}, apierror.Wrap(apierror.KindValidation, err)
	}
	req := transport.Request{Method: http.MethodPost, Path: collectionPath(resource.Recipes), JSON: in}
	return mutateEntity[Recipe](ctx, s.engine, invalidation.Create(resource.Recipes), req)
}

// AnalyzeImages uploads photos of a dish or recipe card. The server saves the
// recipe it extracts, so the listing is invalidated like a create.
func (s *RecipeService) AnalyzeImages(ctx context.Context, files []transport.File, prompt string) (Recipe, error) {
	if err := requireImages(files); err != nil {
		return Recipe{}, err
	}
	req := transport.Request{
		Method:    http.MethodPost,
		Path:      collectionPath(resource.Recipes) + "analyze",
		Multipart: attachment.Multipart(files, prompt),
	}
	return mutateEntity[Recipe](ctx, s.engine, invalidation.Create(resource.Recipes), req)
}

func (s *RecipeService) Update(ctx context.Context, id string, in RecipeUpdate) (Recipe, error) {
	if err := requireID(resource.Recipes, id); err != nil {
		return Recipe{}, err
	}
	req := transport.Request{Method: http.MethodPut, Path: itemPath(resource.Recipes, id), JSON: in}
	return mutateEntity[Recipe](ctx, s.engine, invalidation.Update(resource.Recipes, id), req)
}

func (s *RecipeService) Delete(ctx context.Context, id string) error {
	if err := requireID(resource.Recipes, id); err != nil {
		return err
	}
	return s.engine.Mutate(ctx, invalidation.Delete(resource.Recipes, id), func(ctx context.Context, sender transport.Sender) error {
		return sender.Send(ctx, transport.Request{Method: http.MethodDelete, Path: itemPath(resource.Recipes, id)}, nil)
	})
}
