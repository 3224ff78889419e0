package api

import (
	"net/http"
)

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.ListPlans(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to fetch plans", err)
		return
	}
	writeData(w, http.StatusOK, "Plans fetched successfully", plans)
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to create plan", err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, "Failed to create plan", err)
		return
	}

	plan := req.record()
	if err := h.store.CreatePlan(r.Context(), plan); err != nil {
		h.fail(w, r, "Failed to create plan", err)
		return
	}
	writeData(w, http.StatusCreated, "Plan created successfully", plan)
}

func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Failed to update plan", err)
		return
	}

	var req updatePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to update plan", err)
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, "Failed to update plan", err)
		return
	}

	plan, err := h.store.UpdatePlan(r.Context(), id, req.changes())
	if err != nil {
		h.fail(w, r, "Failed to update plan", err)
		return
	}
	writeData(w, http.StatusOK, "Plan updated successfully", plan)
}

func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, "Failed to delete plan", err)
		return
	}
	if err := h.store.DeletePlan(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete plan", err)
		return
	}
	writeData(w, http.StatusOK, "Plan deleted successfully", nil)
}
