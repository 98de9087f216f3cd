package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/appctx"
)

// Recover turns a handler panic into a logged error and a call to onPanic,
// which writes the client-facing 500 body.
func Recover(onPanic func(http.ResponseWriter)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				appctx.GetLogger(r.Context()).Error("unhandled panic",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				onPanic(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
