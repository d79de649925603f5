package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/billable/billable/handlers"
)

// RequestLogger logs at the start and stop of incoming HTTP requests as well
// as recovers from panics, reporting them to sentry.
func RequestLogger(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if r.URL.EscapedPath() == "/metrics" { // Skip logging prometheus metric scrapes
				next.ServeHTTP(w, r)
				return
			}

			entry := hlog.FromRequest(r)
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				t2 := time.Now()

				// Recover and record stack traces in case of a panic
				if rec := recover(); rec != nil {
					entry.Error().Interface("panic", rec).Msg("recovered from panic")
					sentry.CaptureException(errors.New(fmt.Sprint(rec)))

					appErr := handlers.AppError{
						Message: http.StatusText(http.StatusInternalServerError),
						Code:    http.StatusInternalServerError,
					}
					appErr.ServeHTTP(w, r)
				}

				// Log the entry, the request is complete.
				entry.Debug().
					Int("status", ww.Status()).
					Int("size", ww.BytesWritten()).
					Dur("duration", t2.Sub(t1)).
					Msg("request complete")
			}()

			r = r.WithContext(entry.WithContext(r.Context()))
			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
