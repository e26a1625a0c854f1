package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/response"
)

// UpsertEntity is the local-source write path: a UI-originated entity
// enters the canonical model through the same upsert primitive as synced
// data, stamped with a local SourceRef. Unstamped direct writes to the
// canonical collections do not exist.
func (h *Handler) UpsertEntity(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	entity, ok := entityValue(entityType)
	if !ok {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.validate.DecodeAndValidate(r, entity); err != nil {
		response.Error(w, err)
		return
	}

	env := entity.GetEnvelope()
	if env.OwnerID == nil {
		env.OwnerID = &caller.UserID
	}
	id, isNew, err := h.local.Upsert(r.Context(), entityType, entity, &caller.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	payload := map[string]interface{}{"id": id, "is_new": isNew}
	if isNew {
		response.Created(w, payload)
		return
	}
	response.OK(w, payload)
}

type stageChangeRequest struct {
	Stage string `json:"stage" validate:"required"`
}

// ChangeOpportunityStage transitions a UI-owned opportunity, enforcing the
// allowed-transition table (closed stages have no legal outgoing
// transitions). Inbound sync data never passes through this check.
func (h *Handler) ChangeOpportunityStage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed opportunity id"))
		return
	}
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req stageChangeRequest
	if err := h.validate.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	opp, err := h.local.ChangeStage(r.Context(), id, domain.Stage(req.Stage), &caller.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, opp)
}

type mergeRequest struct {
	SecondaryID string `json:"secondary_id" validate:"required,uuid"`
}

// MergeEntities merges a secondary entity into the addressed primary.
func (h *Handler) MergeEntities(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	primaryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed entity id"))
		return
	}
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req mergeRequest
	if err := h.validate.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	secondaryID, err := uuid.Parse(req.SecondaryID)
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed secondary id"))
		return
	}
	survivor, err := h.manager.MergeEntities(r.Context(), entityType, primaryID, secondaryID, &caller.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"id": survivor})
}

// DeleteEntity removes a canonical entity (admin operation).
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed entity id"))
		return
	}
	caller, err := callerContext(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.manager.DeleteEntity(r.Context(), entityType, id, &caller.UserID); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// FindDuplicates lists candidate duplicates of an entity by its natural
// key. Never merges.
func (h *Handler) FindDuplicates(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.Valid() {
		response.Error(w, errors.ErrBadRequest("unknown entity type: "+string(entityType)))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, errors.ErrBadRequest("malformed entity id"))
		return
	}
	candidates, err := h.manager.FindDuplicates(r.Context(), entityType, id,
		r.URL.Query().Get("email"), r.URL.Query().Get("name"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, candidates)
}
