package httpx

import (
	"log/slog"
	"net/http"

	"github.com/merchkit/postline/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Submit *service.SubmitService
	Cancel *service.CancelService
	Query  *service.QueryService
	// Optional: when the dispatcher runs in this process, sweeps can be
	// triggered on demand through the API.
	Dispatcher *service.DispatcherService
	Logger     *slog.Logger
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	postHandlers := &PostHandlers{
		Submit: services.Submit,
		Cancel: services.Cancel,
		Query:  services.Query,
	}
	registerPostRoutes(mux, postHandlers)

	if services.Dispatcher != nil {
		dispatcherHandlers := &DispatcherHandlers{Svc: services.Dispatcher}
		mux.HandleFunc("POST /api/dispatcher/sweep", dispatcherHandlers.TriggerSweep)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerPostRoutes(mux *http.ServeMux, h *PostHandlers) {
	mux.HandleFunc("POST /api/posts", h.SubmitPost)
	mux.HandleFunc("GET /api/posts", h.ListPosts)
	mux.HandleFunc("GET /api/posts/{id}", h.GetPost)
	mux.HandleFunc("DELETE /api/posts/{id}", h.CancelPost)
}
