package store

import (
	"context"
	"net/http"

	"expensetracker/internal/httpclient"
	"expensetracker/internal/log"
	"expensetracker/internal/model"
)

const (
	categoriesPath     = "/api/categories"
	sortCategoriesPath = categoriesPath + "/sorted-categories"
)

// CategoryStore mirrors /api/categories.
type CategoryStore struct {
	*resource[model.Category, State[model.Category]]
}

func NewCategoryStore(api httpclient.Requester, logger *log.Logger) *CategoryStore {
	return &CategoryStore{
		resource: newResource(
			"categories", categoriesPath, api, logger,
			func(st State[model.Category]) State[model.Category] { return st }),
	}
}

func (s *CategoryStore) LoadAll(ctx context.Context, opts ...CallOption) error {
	return s.loadAll(ctx, nil, opts)
}

func (s *CategoryStore) LoadByID(ctx context.Context, id string, opts ...CallOption) error {
	return s.loadByID(ctx, id, opts)
}

func (s *CategoryStore) Create(ctx context.Context, req model.CategoryRequest, opts ...CallOption) error {
	return s.create(ctx, req, opts)
}

func (s *CategoryStore) Update(ctx context.Context, id string, req model.CategoryRequest, opts ...CallOption) error {
	return s.update(ctx, id, req, opts)
}

func (s *CategoryStore) Delete(ctx context.Context, id string, opts ...CallOption) error {
	return s.remove(ctx, id, opts)
}

// Sort persists a new display order. On success the local items take their
// order from the request; the response body is ignored.
func (s *CategoryStore) Sort(ctx context.Context, orders []model.SortOrder, opts ...CallOption) error {
	for _, o := range orders {
		if msgs := model.Validate(o); len(msgs) > 0 {
			return s.rejectLocal(ctx, ActionSort, o.ID, msgs)
		}
	}
	req := append([]model.SortOrder(nil), orders...)

	return s.call(ctx, ActionSort, "", opts,
		func(ctx context.Context) error {
			return s.api.Do(ctx, http.MethodPost, sortCategoriesPath, req, nil, nil)
		},
		func(st *State[model.Category]) {
			st.Items = applyOrder(st.Items, req)
		})
}

func applyOrder(items []model.Category, orders []model.SortOrder) []model.Category {
	byID := make(map[string]int, len(orders))
	for _, o := range orders {
		byID[o.ID] = o.Order
	}
	out := make([]model.Category, len(items))
	for i, c := range items {
		if order, ok := byID[c.ID]; ok {
			c.Order = order
		}
		out[i] = c
	}
	return out
}
