package httpx

import (
	"net/http"
	"time"

	"github.com/merchkit/postline/internal/service"
)

// DispatcherHandlers provides HTTP handlers for on-demand dispatcher control.
type DispatcherHandlers struct {
	Svc *service.DispatcherService
}

// TriggerSweep handles HTTP requests to run a dispatch sweep immediately.
func (h *DispatcherHandlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Svc.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		writeAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
