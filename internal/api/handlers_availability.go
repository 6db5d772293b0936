package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tutorhive/scheduling/internal/scheduling"
)

// principalID reads the pre-verified acting user from X-User-ID. Identity
// verification happens upstream; this layer only carries the value through.
func principalID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	return id, err == nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func createRuleHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(r, "tutorID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_tutor_id", "tutorID must be a valid UUID")
			return
		}

		actor, ok := principalID(r)
		if !ok || actor != tutorID {
			writeError(w, http.StatusForbidden, "forbidden", "only the tutor may manage their availability")
			return
		}

		var req CreateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rule, err := svc.CreateRule(r.Context(), tutorID, scheduling.Weekday(req.Weekday), req.StartMinute, req.EndMinute)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRuleResponse(rule))
	}
}

func listRulesHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(r, "tutorID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_tutor_id", "tutorID must be a valid UUID")
			return
		}

		rules, err := svc.ListTutorRules(r.Context(), tutorID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]RuleResponse, 0, len(rules))
		for i := range rules {
			resp = append(resp, toRuleResponse(&rules[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateRuleHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, ok := pathUUID(r, "ruleID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", "ruleID must be a valid UUID")
			return
		}

		actor, ok := principalID(r)
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden", "missing acting user")
			return
		}

		var req UpdateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		update := scheduling.RuleUpdate{
			StartMinute: req.StartMinute,
			EndMinute:   req.EndMinute,
			IsActive:    req.IsActive,
		}
		if req.Weekday != nil {
			wd := scheduling.Weekday(*req.Weekday)
			update.Weekday = &wd
		}

		rule, err := svc.UpdateRule(r.Context(), actor, ruleID, update)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRuleResponse(rule))
	}
}

func toggleRuleHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, ok := pathUUID(r, "ruleID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", "ruleID must be a valid UUID")
			return
		}

		actor, ok := principalID(r)
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden", "missing acting user")
			return
		}

		var req ToggleRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rule, err := svc.SetRuleActive(r.Context(), actor, ruleID, req.IsActive)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRuleResponse(rule))
	}
}

func deleteRuleHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ruleID, ok := pathUUID(r, "ruleID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_rule_id", "ruleID must be a valid UUID")
			return
		}

		actor, ok := principalID(r)
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden", "missing acting user")
			return
		}

		if err := svc.DeleteRule(r.Context(), actor, ruleID); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listSlotsHandler(svc *scheduling.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(r, "tutorID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_tutor_id", "tutorID must be a valid UUID")
			return
		}

		slots, err := svc.ListAvailableSlots(r.Context(), tutorID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
