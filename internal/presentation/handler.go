package handler

import (
	"errors"
	"net/http"
	"strconv"

	"collabdeck/internal/presentation/model"
	"collabdeck/internal/presentation/service"
	"collabdeck/middleware"
	"collabdeck/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// PasswordHeader carries the access password for public, protected decks.
const PasswordHeader = "X-Presentation-Password"

type PresentationHandler struct {
	Service *service.PresentationService
}

func NewPresentationHandler(service *service.PresentationService) *PresentationHandler {
	return &PresentationHandler{Service: service}
}

// Routes mounts under /api/presentations.
func (h *PresentationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListPresentations)
	r.Post("/", h.CreatePresentation)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetPresentation)
		r.Patch("/", h.RenamePresentation)
		r.Delete("/", h.DeletePresentation)

		r.Post("/verify", h.VerifyAccess)
		r.Get("/activity", h.ListActivity)
		r.Get("/presence", h.ActiveCollaborators)
		r.Put("/settings", h.UpdateSettings)
		r.Post("/collaborators", h.InviteCollaborator)
		r.Patch("/collaborators", h.UpdateCollaborators)
		r.Post("/transfer", h.TransferOwnership)
		r.Post("/locks/release-expired", h.ReleaseExpiredLocks)

		r.Post("/slides", h.AddSlide)
		r.Route("/slides/{slideId}", func(r chi.Router) {
			r.Delete("/", h.DeleteSlide)
			r.Put("/notes", h.UpdateSpeakerNotes)

			r.Get("/comments", h.ListComments)
			r.Post("/comments", h.AddComment)
			r.Post("/comments/{commentId}/resolve", h.ResolveComment)

			r.Post("/elements", h.AddElement)
			r.Route("/elements/{elementId}", func(r chi.Router) {
				r.Patch("/", h.UpdateElement)
				r.Delete("/", h.DeleteElement)
				r.Post("/lock", h.AcquireLock)
				r.Delete("/lock", h.ReleaseLock)
			})
		})
	})
	return r
}

// TeamRoutes mounts under /api/teams.
func (h *PresentationHandler) TeamRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{teamId}/activity", h.ListTeamActivity)
	return r
}

func userID(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrElementLocked), errors.Is(err, service.ErrTransactionExhausted):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Sugar.Errorf("Handler: %s %s failed: %v", r.Method, r.URL.Path, err)
		msg = "internal server error"
	}
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

func password(r *http.Request) string {
	if pw := r.Header.Get(PasswordHeader); pw != "" {
		return pw
	}
	return r.URL.Query().Get("password")
}

// redact strips what clients must never see.
func redact(p *model.Presentation) *model.Presentation {
	p.Settings.PasswordHash = ""
	return p
}

type presentationResponse struct {
	*model.Presentation
	Role model.Role `json:"role"`
}

func (h *PresentationHandler) ListPresentations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListPresentations(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

func (h *PresentationHandler) CreatePresentation(w http.ResponseWriter, r *http.Request) {
	var req model.CreatePresentationRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	p, err := h.Service.CreatePresentation(r.Context(), userID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, redact(p))
}

func (h *PresentationHandler) GetPresentation(w http.ResponseWriter, r *http.Request) {
	p, role, err := h.Service.GetPresentation(r.Context(), chi.URLParam(r, "id"), userID(r), password(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, presentationResponse{Presentation: redact(p), Role: role})
}

func (h *PresentationHandler) RenamePresentation(w http.ResponseWriter, r *http.Request) {
	var req model.RenameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Service.RenamePresentation(r.Context(), userID(r), chi.URLParam(r, "id"), req.Title); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresentationHandler) DeletePresentation(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	if err := h.Service.DeletePresentation(r.Context(), userID(r), chi.URLParam(r, "id"), hard); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresentationHandler) VerifyAccess(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyAccessRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := h.Service.VerifyAccess(r.Context(), chi.URLParam(r, "id"), userID(r), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, model.VerifyAccessResponse{Granted: ok})
}

func (h *PresentationHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.ListActivity(r.Context(), userID(r), chi.URLParam(r, "id"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, entries)
}

func (h *PresentationHandler) ListTeamActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.ListTeamActivity(r.Context(), userID(r), chi.URLParam(r, "teamId"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, entries)
}

func (h *PresentationHandler) ActiveCollaborators(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, err := h.Service.Authorize(r.Context(), id, userID(r), model.RoleViewer, password(r)); err != nil {
		writeError(w, r, err)
		return
	}
	active, err := h.Service.ActiveCollaborators(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, active)
}

func (h *PresentationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.SettingsUpdate
	if !decode(w, r, &req) {
		return
	}
	st, err := h.Service.UpdateSettings(r.Context(), userID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func (h *PresentationHandler) InviteCollaborator(w http.ResponseWriter, r *http.Request) {
	var req model.InviteRequest
	if !decode(w, r, &req) {
		return
	}
	change, err := h.Service.InviteCollaborator(r.Context(), userID(r), chi.URLParam(r, "id"), req.Email, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, change)
}

func (h *PresentationHandler) UpdateCollaborators(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCollaboratorsRequest
	if !decode(w, r, &req) {
		return
	}
	changes, err := h.Service.UpdateCollaborators(r.Context(), userID(r), chi.URLParam(r, "id"), req.Changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, changes)
}

func (h *PresentationHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req model.TransferOwnershipRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Service.TransferOwnership(r.Context(), userID(r), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresentationHandler) ReleaseExpiredLocks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, err := h.Service.Authorize(r.Context(), id, userID(r), model.RoleViewer, password(r)); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.Service.ReleaseExpiredLocks(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, model.ReleaseExpiredResponse{Released: n})
}

func (h *PresentationHandler) AddSlide(w http.ResponseWriter, r *http.Request) {
	var req model.SlideRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	slide, err := h.Service.AddSlide(r.Context(), userID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, slide)
}

func (h *PresentationHandler) DeleteSlide(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteSlide(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "slideId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresentationHandler) UpdateSpeakerNotes(w http.ResponseWriter, r *http.Request) {
	var req model.SpeakerNotesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Service.UpdateSpeakerNotes(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), req.SpeakerNotes); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresentationHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Service.ListComments(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), userID(r), password(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, comments)
}

func (h *PresentationHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req model.CommentRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Service.AddComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), userID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (h *PresentationHandler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	err := h.Service.ResolveComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), chi.URLParam(r, "commentId"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PresentationHandler) AddElement(w http.ResponseWriter, r *http.Request) {
	var req model.ElementRequest
	if !decode(w, r, &req) {
		return
	}
	el, err := h.Service.AddElement(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, el)
}

func (h *PresentationHandler) UpdateElement(w http.ResponseWriter, r *http.Request) {
	var req model.ElementPatch
	if !decode(w, r, &req) {
		return
	}
	el, err := h.Service.UpdateElement(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), chi.URLParam(r, "elementId"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, el)
}

func (h *PresentationHandler) DeleteElement(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteElement(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), chi.URLParam(r, "elementId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcquireLock answers 200 either way; a lock held by someone else is
// {"acquired": false}, not an error.
func (h *PresentationHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Service.AcquireLock(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), chi.URLParam(r, "elementId"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, model.LockResponse{Acquired: ok})
}

func (h *PresentationHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	err := h.Service.ReleaseLock(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "slideId"), chi.URLParam(r, "elementId"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
