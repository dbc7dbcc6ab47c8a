package handler

import (
	"context"
	"net/http"
	"net/url"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecordStore is the read side of a repository.
type RecordStore[R any, ID ~int64, F any] interface {
	FindByID(ctx context.Context, id ID) (*R, error)
	List(ctx context.Context, filter F) ([]R, error)
}

// ListingHandler serves GET / (filtered list) and GET /{id} for one record
// type.
type ListingHandler[R any, ID ~int64, F any] struct {
	store  RecordStore[R, ID, F]
	parse  func(url.Values) (F, error)
	logger *zap.Logger
}

func NewListingHandler[R any, ID ~int64, F any](store RecordStore[R, ID, F], parse func(url.Values) (F, error), logger *zap.Logger) *ListingHandler[R, ID, F] {
	return &ListingHandler[R, ID, F]{store: store, parse: parse, logger: logger}
}

func (h *ListingHandler[R, ID, F]) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

func (h *ListingHandler[R, ID, F]) list(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parse(r.URL.Query())
	if err != nil {
		respondError(w, r, h.logger, common.ErrBadRequest)
		return
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []R{}
	}
	common.RespondWithJSON(w, http.StatusOK, records)
}

func (h *ListingHandler[R, ID, F]) get(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID[ID](chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, common.ErrBadRequest)
		return
	}

	record, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, record)
}
