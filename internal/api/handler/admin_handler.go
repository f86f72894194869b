package handler

import (
	"context"
	"net/http"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type AccountAdministration interface {
	ListAccounts(ctx context.Context) ([]model.UserResponse, error)
	Promote(ctx context.Context, targetID int64) (*model.UserResponse, error)
	DeleteAccount(ctx context.Context, targetID int64) error
}

// AdminHandler serves /api/admin. Access is enforced by the policy gate.
type AdminHandler struct {
	admin AccountAdministration
	log   *logrus.Logger
}

func NewAdminHandler(admin AccountAdministration, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listAccounts)
	r.Put("/{userId}/role", h.promote)
	r.Delete("/{userId}", h.deleteAccount)
}

func (h *AdminHandler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.admin.ListAccounts(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, accounts)
}

func (h *AdminHandler) promote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	account, err := h.admin.Promote(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, account)
}

func (h *AdminHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.admin.DeleteAccount(r.Context(), id); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	common.RespondNoContent(w)
}
