package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/api/types"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
)

// Recovery logs panics and answers 500 in the API envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.L().Error("panic recovered",
				zap.String("id", GetRequestID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			types.WriteError(w, appErr.New(appErr.CodeInternal, "internal error"))
		}()
		next.ServeHTTP(w, r)
	})
}
