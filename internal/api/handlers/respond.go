package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lumnicode/engine/internal/api/middleware"
	"github.com/lumnicode/engine/internal/api/types"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

const maxBodyBytes = 5 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, data any) {
	types.WriteJSON(w, status, types.APIResponse{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, r *http.Request, data any, page, size int, total int64) {
	types.WriteJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    data,
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Page: page, PageSize: size, Total: total},
	})
}

func writeError(w http.ResponseWriter, err error) {
	types.WriteError(w, err)
}

// bind decodes a JSON body into dst and validates its struct tags.
func bind(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return appErr.New(appErr.CodeInvalid, "request body is required")
		}
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid json")
	}
	if err := validate.Struct(dst); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, appErr.Newf(appErr.CodeInvalid, "invalid %s", name)
	}
	return id, nil
}

// currentUser is set by middleware.UserLoader on every /api/v1 route.
func currentUser(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		return uuid.Nil, appErr.New(appErr.CodeUnauthorized, "authentication required")
	}
	return id, nil
}
