package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"agentauth/pkg/platform/httputil"
)

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	consent, err := h.consents.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "revoke_consent_failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, consent)
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	consent, err := h.consents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "get_consent_failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, consent)
}

func (h *Handler) handleIssueConsentToken(w http.ResponseWriter, r *http.Request) {
	grant, err := h.consents.IssueToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, "issue_consent_token_failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, grant)
}
