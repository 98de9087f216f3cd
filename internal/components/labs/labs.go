// Package labs serves the lab router's JSON endpoints.
package labs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/api"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/instruqt"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/resolver"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"
)

// Response details. The form shows these verbatim.
const (
	DetailListTracksFailed = "Failed to list tracks"
	DetailNoMatchingLab    = "No matching lab"
	DetailLabSelectFailed  = "Lab selection failed"
	detailInviteFailed     = "Invite creation failed: "
)

// maxBodyBytes bounds the /resolve request body.
const maxBodyBytes = 64 << 10

// Catalogue lists the team's tracks.
type Catalogue interface {
	ListTracks(ctx context.Context) ([]instruqt.Track, error)
}

// Inviter mints invites from a prompt or a known slug.
type Inviter interface {
	Resolve(ctx context.Context, prompt string) (resolver.Invite, error)
	Invite(ctx context.Context, slug string) (resolver.Invite, error)
}

// Handler serves /tracks, /invite, /resolve and /invites.
type Handler struct {
	catalogue Catalogue
	inviter   Inviter
	ledger    store.InviteLedger
	log       *slog.Logger
}

// NewHandler builds the handler. ledger may be nil, in which case /invites is always empty.
func NewHandler(catalogue Catalogue, inviter Inviter, ledger store.InviteLedger, log *slog.Logger) *Handler {
	return &Handler{
		catalogue: catalogue,
		inviter:   inviter,
		ledger:    ledger,
		log:       logutil.NoopIfNil(log),
	}
}

// ResolveRequest is the /resolve body.
type ResolveRequest struct {
	Prompt *string `json:"prompt"`
}

// HandleTracks handles GET /tracks.
func (h *Handler) HandleTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.catalogue.ListTracks(r.Context())
	if err != nil {
		appctx.GetLogger(r.Context()).Error("list tracks failed", "error", err)
		api.WriteBadGateway(w, DetailListTracksFailed)
		return
	}
	if tracks == nil {
		tracks = []instruqt.Track{}
	}
	api.WriteJSON(w, http.StatusOK, tracks)
}

// HandleInvite handles POST /invite?slug=<slug>.
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		api.WriteUnprocessable(w, api.ReasonMissingField, "Query parameter slug is required")
		return
	}

	inv, err := h.inviter.Invite(r.Context(), slug)
	if err != nil {
		appctx.GetLogger(r.Context()).Error("invite failed", "slug", slug, "error", err)
		api.WriteBadGateway(w, detailInviteFailed+err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, inv)
}

// HandleResolve handles POST /resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		api.WriteUnprocessable(w, api.ReasonInvalidBody, "Request body must be a JSON object")
		return
	}
	if req.Prompt == nil {
		api.WriteUnprocessable(w, api.ReasonMissingField, "Field prompt is required")
		return
	}

	inv, err := h.inviter.Resolve(r.Context(), *req.Prompt)
	switch {
	case err == nil:
		api.WriteJSON(w, http.StatusOK, inv)
	case errors.Is(err, resolver.ErrNoMatchingLab):
		api.WriteNotFound(w, api.ReasonNoMatch, DetailNoMatchingLab)
	case errors.Is(err, resolver.ErrListTracks):
		appctx.GetLogger(r.Context()).Error("resolve failed", "error", err)
		api.WriteBadGateway(w, DetailListTracksFailed)
	case errors.Is(err, resolver.ErrChooser):
		appctx.GetLogger(r.Context()).Error("resolve failed", "error", err)
		api.WriteBadGateway(w, DetailLabSelectFailed)
	default:
		appctx.GetLogger(r.Context()).Error("resolve failed", "error", err)
		api.WriteBadGateway(w, detailInviteFailed+err.Error())
	}
}

// HandleList handles GET /invites?limit=<n>.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.WriteUnprocessable(w, api.ReasonInvalidParam, fmt.Sprintf("Invalid limit %q", raw))
			return
		}
		limit = n
	}

	records := []*store.InviteRecord{}
	if h.ledger != nil {
		got, err := h.ledger.List(r.Context(), limit)
		if err != nil {
			appctx.GetLogger(r.Context()).Error("list invites failed", "error", err)
			api.WriteInternalError(w)
			return
		}
		if got != nil {
			records = got
		}
	}
	api.WriteJSON(w, http.StatusOK, records)
}
