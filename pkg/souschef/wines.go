package souschef

import (
	"context"
	"net/http"
	"strings"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/attachment"
	"github.com/illmade-knight/go-resourcesync/pkg/invalidation"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/illmade-knight/go-resourcesync/pkg/syncengine"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
)

type WineService struct {
	engine *syncengine.Engine
}

func (s *WineService) List() (*Watch[[]Wine], error) {
	return watchList[Wine](s.engine, resource.Wines)
}

func (s *WineService) Get(id string) (*Watch[Wine], error) {
	return watchItem[Wine](s.engine, resource.Wines, id)
}

func (s *WineService) Create(ctx context.Context, in WineCreate) (Wine, error) {
	if err := in.Validate(); err != nil {
		return Wine{}, apierror.Wrap(apierror.KindValidation, err)
	}
	req := transport.Request{Method: http.MethodPost, Path: collectionPath(resource.Wines), JSON: in}
	return mutateEntity[Wine](ctx, s.engine, invalidation.Create(resource.Wines), req)
}

// AnalyzeImages asks the sommelier about photographed labels. Nothing is
// saved, so the cache is not touched.
func (s *WineService) AnalyzeImages(ctx context.Context, files []transport.File, prompt string) (WineAnalysis, error) {
	if err := requireImages(files); err != nil {
		return WineAnalysis{}, err
	}
	req := transport.Request{
		Method:    http.MethodPost,
		Path:      collectionPath(resource.Wines) + "analyze",
		Multipart: attachment.Multipart(files, prompt),
	}
	return s.analysis(ctx, req)
}

// Ask puts a free-text question to the sommelier. Nothing is saved.
func (s *WineService) Ask(ctx context.Context, prompt string) (WineAnalysis, error) {
	if strings.TrimSpace(prompt) == "" {
		return WineAnalysis{}, apierror.New(apierror.KindValidation, "a question is required")
	}
	req := transport.Request{
		Method: http.MethodPost,
		Path:   collectionPath(resource.Wines) + "ask",
		JSON:   wineAsk{Prompt: prompt},
	}
	return s.analysis(ctx, req)
}

func (s *WineService) analysis(ctx context.Context, req transport.Request) (WineAnalysis, error) {
	var out WineAnalysis
	if err := s.engine.Sender().Send(ctx, req, &out); err != nil {
		return WineAnalysis{}, apierror.Normalize(err)
	}
	return out, nil
}

func (s *WineService) Update(ctx context.Context, id string, in WineUpdate) (Wine, error) {
	if err := requireID(resource.Wines, id); err != nil {
		return Wine{}, err
	}
	req := transport.Request{Method: http.MethodPut, Path: itemPath(resource.Wines, id), JSON: in}
	return mutateEntity[Wine](ctx, s.engine, invalidation.Update(resource.Wines, id), req)
}

// Delete removes a wine. Both the wine and the listing are invalidated.
func (s *WineService) Delete(ctx context.Context, id string) error {
	if err := requireID(resource.Wines, id); err != nil {
		return err
	}
	return s.engine.Mutate(ctx, invalidation.Delete(resource.Wines, id), func(ctx context.Context, sender transport.Sender) error {
		return sender.Send(ctx, transport.Request{Method: http.MethodDelete, Path: itemPath(resource.Wines, id)}, nil)
	})
}
