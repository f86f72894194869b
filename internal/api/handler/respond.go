package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"todo_service/internal/api/middleware"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// respondError writes err with its mapped status. Errors outside the domain
// taxonomy are logged and answered with the generic message.
func respondError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	if !common.IsKnown(err) {
		log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": chiMiddleware.GetReqID(r.Context()),
		}).WithError(err).Error("request failed")
	}
	common.RespondWithDomainError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", common.ErrBadRequest)
	}
	return nil
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s: %w", name, common.ErrBadRequest)
	}
	return id, nil
}

// principal returns the caller, or nil for anonymous requests. Services
// reject a nil principal themselves.
func principal(r *http.Request) *model.Principal {
	p, _ := middleware.GetPrincipalFromContext(r.Context())
	return p
}
