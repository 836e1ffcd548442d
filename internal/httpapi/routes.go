package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/hub"
	"github.com/DoyleJ11/airdeck/internal/relay"
	"github.com/DoyleJ11/airdeck/internal/ws"
)

type ctxKey struct{}

func hostFrom(ctx context.Context) *relay.Host {
	return ctx.Value(ctxKey{}).(*relay.Host)
}

// roomCtx resolves {room} to its host session or answers 404.
func roomCtx(h *hub.Hub) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reply := make(chan *relay.Host, 1)
			h.Inbox() <- hub.GetRoom{Code: chi.URLParam(r, "room"), Reply: reply}
			host := <-reply
			if host == nil {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, host)))
		})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func SetupRoutes(h *hub.Hub, defaultSource string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/rooms", CreateRoom(h, defaultSource, log))

	r.Route("/rooms/{room}", func(r chi.Router) {
		// the websocket handler looks the room up itself
		r.Get("/ws", ws.Handler(h, log))

		r.Group(func(r chi.Router) {
			r.Use(roomCtx(h))
			r.Get("/", GetRoom)
			r.Post("/moves", PostMove)
			r.Post("/point", PostPoint)
			r.Post("/reload", PostReload)
			r.Post("/open", PostOpen)
		})
	})
	return r
}
