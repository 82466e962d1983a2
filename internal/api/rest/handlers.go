package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	app "vision-scan/internal/application"
	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

const defaultLimit = 20

type Handlers struct {
	ctrl  *app.Controller
	store port.ResultStore
}

func NewHandlers(ctrl *app.Controller, store port.ResultStore) *Handlers {
	return &Handlers{ctrl: ctrl, store: store}
}

func (h *Handlers) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(h.ctrl.State()))
}

func (h *Handlers) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	m := h.ctrl.Metrics()
	writeJSON(w, http.StatusOK, metricsResponse{
		AttemptID:   m.AttemptID,
		Source:      m.Source,
		DurationsMS: m.Durations(),
	})
}

func (h *Handlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.Start(detach(r))
	h.writeState(w, h.ctrl.State(), err)
}

func (h *Handlers) RetryPermissionHandler(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.RetryPermission(detach(r))
	h.writeState(w, h.ctrl.State(), err)
}

func (h *Handlers) ResetHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.Reset(detach(r))
	h.writeState(w, snap, err)
}

func (h *Handlers) DismissNoticeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(h.ctrl.DismissNotice()))
}

func (h *Handlers) CaptureHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.Capture(detach(r))
	h.writeState(w, snap, err)
}

// GalleryHandler принимает файл в поле image. С ?preprocessed=true файл
// считается уже сжатым клиентом и только проверяется. Размер файла не
// ограничивается: предел по пикселям проверяет препроцессор.
func (h *Handlers) GalleryHandler(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := readImagePart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}

	ctx := detach(r)
	if r.URL.Query().Get("preprocessed") == "true" {
		img := entity.PreprocessedImage{Data: data}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			img.Width, img.Height = cfg.Width, cfg.Height
		}
		snap, err := h.ctrl.SubmitPreprocessed(ctx, img)
		h.writeState(w, snap, err)
		return
	}

	snap, err := h.ctrl.SubmitGallery(ctx, data, mimeType)
	h.writeState(w, snap, err)
}

// readImagePart читает поле image потоком, не складывая форму во временные файлы.
func readImagePart(r *http.Request) ([]byte, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("invalid upload: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", errors.New("image field is required")
		}
		if err != nil {
			return nil, "", fmt.Errorf("invalid upload: %w", err)
		}
		if part.FormName() != "image" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read upload: %w", err)
		}
		return data, part.Header.Get("Content-Type"), nil
	}
}

func (h *Handlers) StartLiveHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.StartLive()
	h.writeState(w, snap, err)
}

func (h *Handlers) StopLiveHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.StopLive()
	h.writeState(w, snap, err)
}

func (h *Handlers) LockHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok, err := h.ctrl.Lock(detach(r))
	if err != nil {
		h.writeState(w, snap, err)
		return
	}
	writeJSON(w, http.StatusOK, lockResponse{Locked: ok, State: toStateResponse(snap)})
}

func (h *Handlers) RescanHandler(w http.ResponseWriter, r *http.Request) {
	err := h.ctrl.Rescan()
	h.writeState(w, h.ctrl.State(), err)
}

func (h *Handlers) ListResultsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "", "limit must be a positive number")
			return
		}
		limit = n
	}

	records, err := h.store.List(r.Context(), limit)
	if err != nil {
		log.Printf("[HTTP] list results: %v", err)
		writeError(w, http.StatusInternalServerError, "", "failed to list results")
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponses(records))
}

func (h *Handlers) DeleteResultHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Delete(r.Context(), entity.AttemptID(id))
	switch {
	case errors.Is(err, port.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "", "result not found")
	case err != nil:
		log.Printf("[HTTP] delete result %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "", "failed to delete result")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeState отвечает состоянием контроллера. Ошибка попытки, которая уже
// отражена в состоянии (фаза Error или PermissionDenied), не меняет код ответа.
func (h *Handlers) writeState(w http.ResponseWriter, snap entity.State, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toStateResponse(snap))
	case errors.Is(err, entity.ErrIllegalTransition), errors.Is(err, app.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, "", err.Error())
	case err == app.ErrNotAnImage:
		writeError(w, http.StatusUnsupportedMediaType, entity.ErrInvalidImage, err.Error())
	case errors.Is(err, app.ErrControllerClosed):
		writeError(w, http.StatusServiceUnavailable, "", err.Error())
	case snap.Err != nil && (snap.Phase == entity.PhaseError || snap.Phase == entity.PhasePermissionDenied):
		writeJSON(w, http.StatusOK, toStateResponse(snap))
	default:
		kind := entity.KindOf(err)
		writeError(w, statusForKind(kind), kind, entity.UserMessage(kind))
	}
}

func statusForKind(kind entity.ErrorKind) int {
	switch kind {
	case entity.ErrCameraUnavailable, entity.ErrCameraPermissionDenied:
		return http.StatusServiceUnavailable
	case entity.ErrInvalidImage, entity.ErrImageTooLarge:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// detach отвязывает попытку от соединения: обрыв запроса не отменяет распознавание
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind entity.ErrorKind, message string) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}
