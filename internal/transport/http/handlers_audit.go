package httptransport

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agentauth/internal/audit"
	dErrors "agentauth/pkg/domain-errors"
	"agentauth/pkg/platform/httputil"
	"agentauth/pkg/requestcontext"
)

const actorTypeAPIClient = "api_client"

// handleAuditExport serves GET /v1/audit/{tenant}/export?regulation=&start=&end=.
// start and end are RFC 3339; end defaults to now and start to end minus the
// regulation's retention period.
func (h *Handler) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenant")
	q := r.URL.Query()

	regulation := audit.RegulationSOX
	if raw := q.Get("regulation"); raw != "" {
		parsed, ok := audit.ParseRegulation(raw)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "unsupported regulation"))
			return
		}
		regulation = parsed
	}

	end := requestcontext.Now(ctx).UTC()
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "end must be RFC 3339"))
			return
		}
		end = t
	}
	start := end.AddDate(0, 0, -regulation.RetentionDays())
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "start must be RFC 3339"))
			return
		}
		start = t
	}

	export, err := h.ledger.Export(ctx, tenantID, regulation, start, end, audit.Actor{
		Type: actorTypeAPIClient,
		ID:   requestcontext.CallerID(ctx),
		IP:   requestcontext.ClientIP(ctx),
	})
	if err != nil {
		h.writeServiceError(ctx, w, "audit_export_failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}

func (h *Handler) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.ledger.VerifyIntegrity(ctx, chi.URLParam(r, "tenant"))
	if err != nil {
		h.writeServiceError(ctx, w, "audit_verify_failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

type publicKeyResponse struct {
	Algorithm      string `json:"algorithm"`
	ProofPublicKey string `json:"proof_public_key"`
	AuditPublicKey string `json:"audit_public_key"`
}

// handlePublicKey publishes the Ed25519 keys merchants use to check proof
// tokens and auditors use to check ledger signatures offline.
func (h *Handler) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, publicKeyResponse{
		Algorithm:      "EdDSA",
		ProofPublicKey: base64.RawURLEncoding.EncodeToString(h.proofs.ProofPublicKey()),
		AuditPublicKey: base64.RawURLEncoding.EncodeToString(h.ledger.PublicKey()),
	})
}
