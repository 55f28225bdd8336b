// Package httpx provides HTTP handlers and utilities for the postline API.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/merchkit/postline/internal/domain/model"
	"github.com/merchkit/postline/internal/service"
)

// PostHandlers provides HTTP handlers for scheduled post operations.
type PostHandlers struct {
	Submit *service.SubmitService
	Cancel *service.CancelService
	Query  *service.QueryService
}

// SubmitPost handles HTTP requests to schedule a new post.
func (h *PostHandlers) SubmitPost(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitPostRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Submit.Submit(r.Context(), &req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// CancelPost handles HTTP requests to cancel a pending post.
func (h *PostHandlers) CancelPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.Cancel.Cancel(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListPosts handles HTTP requests to list recent posts, newest first.
func (h *PostHandlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", service.MaxListLimit)

	views, err := h.Query.List(r.Context(), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"posts": views})
}

// GetPost handles HTTP requests to fetch a single post by id.
func (h *PostHandlers) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := h.Query.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("post id must be a positive integer"),
		})
		return 0, false
	}
	return id, true
}
