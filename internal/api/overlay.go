package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"technical-analyst/chart"
	"technical-analyst/internal/render"
	"technical-analyst/internal/session"
)

// OverlayRequest carries the arguments of a chart overlay action. Date and
// Value default to the last clicked point.
type OverlayRequest struct {
	Container string   `json:"container"`
	Value     *float64 `json:"value,omitempty"`
	Date      string   `json:"date,omitempty"`
	Text      string   `json:"text,omitempty"`
	Element   string   `json:"element,omitempty"`
}

// HandleOverlay runs one context-menu action on a chart of session {id}:
// hline, vline, annotate, clear, export, screenshot or last.
func (h *Handler) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.app.Sessions().Get(chi.URLParam(r, "id"))
	if !ok {
		h.jsonError(w, "Session not found", http.StatusNotFound)
		return
	}

	var req OverlayRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	}
	if req.Container == "" {
		req.Container = chart.KindPrice.ContainerID()
	}

	op := chi.URLParam(r, "op")
	ov, err := s.Overlay(req.Container)
	if err != nil {
		h.jsonError(w, err.Error(), overlayStatus(err))
		return
	}

	last, hasLast := ov.LastPoint()
	switch op {
	case "hline":
		value := last.Value
		if req.Value != nil {
			value = *req.Value
		} else if !hasLast {
			h.jsonError(w, "value is required", http.StatusBadRequest)
			return
		}
		err = ov.AddHorizontalLine(value)
	case "vline":
		date := req.Date
		if date == "" {
			date = last.Date
		}
		if date == "" {
			h.jsonError(w, "date is required", http.StatusBadRequest)
			return
		}
		err = ov.AddVerticalLine(date)
	case "annotate":
		if req.Text == "" {
			h.jsonError(w, "text is required", http.StatusBadRequest)
			return
		}
		date, value := req.Date, last.Value
		if date == "" {
			date = last.Date
		}
		if req.Value != nil {
			value = *req.Value
		}
		if date == "" {
			h.jsonError(w, "date is required", http.StatusBadRequest)
			return
		}
		err = ov.AddAnnotation(date, value, req.Text)
	case "clear":
		err = ov.Clear()
	case "export":
		png, err := ov.ExportImage(r.Context())
		h.pngResponse(w, png, err)
		return
	case "screenshot":
		png, err := ov.Screenshot(r.Context(), req.Element)
		h.pngResponse(w, png, err)
		return
	case "last":
		if !hasLast {
			h.jsonError(w, "no point selected", http.StatusNotFound)
			return
		}
		h.jsonResponse(w, last)
		return
	default:
		h.jsonError(w, "unknown overlay action "+op, http.StatusNotFound)
		return
	}

	if err != nil {
		h.jsonError(w, err.Error(), overlayStatus(err))
		return
	}
	shapes, annotations := ov.Markers()
	if shapes == nil {
		shapes = []chart.Shape{}
	}
	if annotations == nil {
		annotations = []chart.Annotation{}
	}
	h.jsonResponse(w, map[string]interface{}{
		"container":   ov.Container(),
		"mode":        ov.Mode().String(),
		"shapes":      shapes,
		"annotations": annotations,
	})
}

func (h *Handler) pngResponse(w http.ResponseWriter, png []byte, err error) {
	if err != nil {
		h.jsonError(w, err.Error(), overlayStatus(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func overlayStatus(err error) int {
	switch {
	case errors.Is(err, render.ErrUnknownContainer):
		return http.StatusNotFound
	case errors.Is(err, render.ErrExportUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}
