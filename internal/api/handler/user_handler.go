package handler

import (
	"context"
	"net/http"
	"todo_service/internal/app/service"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// SelfService is what a signed-in user can do to their own account.
type SelfService interface {
	Profile(ctx context.Context, principal *model.Principal) (*model.UserResponse, error)
	ChangePassword(ctx context.Context, principal *model.Principal, req service.PasswordUpdateRequest) error
	DeleteSelf(ctx context.Context, principal *model.Principal) error
}

type UserHandler struct {
	accounts SelfService
	log      *logrus.Logger
}

func NewUserHandler(accounts SelfService, log *logrus.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, log: log}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/info", h.info)
	r.Put("/password", h.changePassword)
	r.Delete("/", h.deleteSelf)
}

func (h *UserHandler) info(w http.ResponseWriter, r *http.Request) {
	profile, err := h.accounts.Profile(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req service.PasswordUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), principal(r), req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondNoContent(w)
}

func (h *UserHandler) deleteSelf(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteSelf(r.Context(), principal(r)); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondNoContent(w)
}
