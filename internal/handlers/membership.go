package handlers

import (
	"net/http"
	"strings"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/auth"
	"github.com/diewo77/go-members/internal/httpx"
	"github.com/diewo77/go-members/internal/membership"
)

// MembershipHandler exposes the membership workflows as JSON endpoints.
type MembershipHandler struct {
	reg       *membership.Registration
	link      *membership.Linking
	checkIn   *membership.CheckIn
	analytics *membership.Analytics
}

func NewMembershipHandler(d membership.Deps) *MembershipHandler {
	return &MembershipHandler{
		reg:       membership.NewRegistration(d),
		link:      membership.NewLinking(d),
		checkIn:   membership.NewCheckIn(d),
		analytics: membership.NewAnalytics(d),
	}
}

// Register mounts the routes on mux. Every route except registration
// requires a verified bearer token.
func (h *MembershipHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", h.SignUp)
	mux.Handle("POST /api/link", auth.RequireSubject(http.HandlerFunc(h.Link)))
	mux.Handle("POST /api/stores/{storeID}/check-in", auth.RequireSubject(http.HandlerFunc(h.CheckIn)))
	mux.Handle("POST /api/visits/{visitID}/survey", auth.RequireSubject(http.HandlerFunc(h.SubmitSurvey)))
	mux.Handle("GET /api/me/card", auth.RequireSubject(http.HandlerFunc(h.Card)))
	mux.Handle("GET /api/me/visits", auth.RequireSubject(http.HandlerFunc(h.Visits)))
}

type registerRequest struct {
	IDToken string `json:"id_token"`
	membership.RegistrationPayload
}

// SignUp onboards a new member. The ID token is read from the body or the
// Authorization header.
func (h *MembershipHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	token := strings.TrimSpace(req.IDToken)
	if token == "" {
		token = auth.BearerToken(r)
	}
	res, err := h.reg.Register(r.Context(), membership.RegisterInput{IDToken: token, Survey: req.RegistrationPayload})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

type linkRequest struct {
	Email string `json:"email"`
}

func (h *MembershipHandler) Link(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	var req linkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}
	res, err := h.link.LinkAccount(r.Context(), req.Email, subject)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *MembershipHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	res, err := h.checkIn.CheckIn(r.Context(), subject, r.PathValue("storeID"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *MembershipHandler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	var in membership.SubmitSurveyInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, err)
		return
	}
	in.VisitID = r.PathValue("visitID")
	in.ExternalIdentityID = subject
	if in.VisitID == "" {
		httpx.Error(w, apperr.NotFound("submit_visit_survey", "visit not found"))
		return
	}
	res, err := h.checkIn.SubmitVisitSurvey(r.Context(), in)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *MembershipHandler) Card(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	card, err := h.analytics.MembershipCard(r.Context(), subject)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *MembershipHandler) Visits(w http.ResponseWriter, r *http.Request) {
	subject, _ := auth.SubjectFromContext(r.Context())
	views, err := h.analytics.VisitHistory(r.Context(), subject)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": views, "total": len(views)})
}
