// Package web is the browser surface of the testing harness: a small chi
// API driving one conversation at a time, plus the embedded chat page the
// tester talks through.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"leadqualdev/export"
	"leadqualdev/logger"
	"leadqualdev/session"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type WebConnectProps struct {
	Logger *logger.LogMiddleware

	// NewController builds a fresh session controller for each conversation.
	NewController func() *session.Controller
}

// Web holds the one active conversation. The harness is a single-tester
// tool; starting a new conversation replaces the previous one only after an
// explicit reset.
type Web struct {
	logger        *logger.LogMiddleware
	newController func() *session.Controller

	mu   sync.Mutex
	ctrl *session.Controller
}

func Connect(ctx context.Context, args WebConnectProps) *Web {
	tracer := otel.Tracer("web/Connect")
	_, span := tracer.Start(ctx, "Connect")
	defer span.End()

	args.Logger.Logger(ctx).Info("[Web] Chat surface ready")

	return &Web{
		logger:        args.Logger,
		newController: args.NewController,
	}
}

// Routes returns the HTTP handler for the harness.
func (w *Web) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", w.handleIndex)
	r.Get("/api/health", w.handleHealth)
	r.Get("/api/session", w.handleState)
	r.Post("/api/session/start", w.handleStart)
	r.Post("/api/session/message", w.handleMessage)
	r.Get("/api/session/export", w.handleExport)
	r.Post("/api/session/reset", w.handleReset)

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		http.Error(rw, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(rw http.ResponseWriter, status int, message string) {
	JSON(rw, status, map[string]string{"error": message})
}

type sessionView struct {
	ConversationID string                `json:"conversation_id"`
	Status         session.Status        `json:"status"`
	Ended          bool                  `json:"ended"`
	Messages       []session.Message     `json:"messages"`
	ExchangeCount  int                   `json:"exchange_count"`
	TokenUsage     session.Usage         `json:"token_usage"`
	Intent         *session.IntentResult `json:"intent_detection,omitempty"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		ConversationID: sess.ID,
		Status:         sess.Status,
		Ended:          sess.Status.Terminal(),
		Messages:       sess.Messages,
		ExchangeCount:  sess.ExchangeCount,
		TokenUsage:     sess.Usage,
		Intent:         sess.Intent,
	}
}

func (w *Web) handleHealth(rw http.ResponseWriter, r *http.Request) {
	JSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func (w *Web) handleState(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctrl == nil {
		JSON(rw, http.StatusOK, map[string]bool{"started": false})
		return
	}

	snap, err := w.ctrl.Snapshot()
	if err != nil {
		Error(rw, http.StatusInternalServerError, "could not read session")
		return
	}
	JSON(rw, http.StatusOK, map[string]interface{}{"started": true, "session": viewOf(snap)})
}

func (w *Web) handleStart(rw http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("web/handleStart")
	ctx, span := tracer.Start(r.Context(), "handleStart")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctrl != nil {
		Error(rw, http.StatusConflict, "conversation already started; reset first")
		return
	}

	ctrl := w.newController()
	sess, err := ctrl.Start(ctx)
	if err != nil {
		span.RecordError(err)
		w.logger.Logger(ctx).Error("[Web] Could not start conversation", zap.Error(err))
		Error(rw, http.StatusBadGateway, "backend unavailable, try again")
		return
	}

	w.ctrl = ctrl
	span.SetAttributes(attribute.String("conversation_id", sess.ID))
	JSON(rw, http.StatusOK, map[string]interface{}{"started": true, "session": viewOf(sess)})
}

type messageRequest struct {
	Text string `json:"text"`
}

func (w *Web) handleMessage(rw http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("web/handleMessage")
	ctx, span := tracer.Start(r.Context(), "handleMessage")
	defer span.End()

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(rw, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(rw, http.StatusBadRequest, "message text cannot be empty")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctrl == nil {
		Error(rw, http.StatusConflict, "conversation not started")
		return
	}

	res, err := w.ctrl.Submit(ctx, req.Text)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, session.ErrInvalidState) {
			Error(rw, http.StatusConflict, "conversation has ended")
			return
		}
		w.logger.Logger(ctx).Error("[Web] Message submit failed", zap.Error(err))
		Error(rw, http.StatusBadGateway, "backend unavailable, try again")
		return
	}

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("exchange_count", res.ExchangeCount),
	)

	JSON(rw, http.StatusOK, map[string]interface{}{
		"reply":            res.Reply,
		"status":           res.Status,
		"ended":            res.Status.Terminal(),
		"exchange_count":   res.ExchangeCount,
		"intent_detection": res.Intent,
	})
}

func (w *Web) handleExport(rw http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("web/handleExport")
	ctx, span := tracer.Start(r.Context(), "handleExport")
	defer span.End()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctrl == nil {
		Error(rw, http.StatusConflict, "conversation not started")
		return
	}

	record, err := w.ctrl.Export()
	if err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			Error(rw, http.StatusConflict, "conversation still active")
			return
		}
		Error(rw, http.StatusInternalServerError, "export failed")
		return
	}

	stamp := time.Now().Format("20060102_150405")

	switch format {
	case "json":
		data, err := export.StructuredJSON(record)
		if err != nil {
			span.RecordError(err)
			Error(rw, http.StatusInternalServerError, "export failed")
			return
		}
		rw.Header().Set("Content-Type", export.ContentTypeJSON)
		rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=conversation_%s.json", stamp))
		rw.Write(data)

	case "pdf":
		data, contentType, err := export.Transcript(record)
		if err != nil {
			span.RecordError(err)
			Error(rw, http.StatusInternalServerError, "export failed")
			return
		}
		ext := "pdf"
		if contentType == export.ContentTypeJSON {
			ext = "json"
			w.logger.Logger(ctx).Warn("[Web] PDF renderer unavailable, serving structured document instead")
		}
		rw.Header().Set("Content-Type", contentType)
		rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=conversation_%s.%s", stamp, ext))
		rw.Write(data)

	default:
		Error(rw, http.StatusBadRequest, "unknown export format, use json or pdf")
	}
}

func (w *Web) handleReset(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.ctrl = nil
	JSON(rw, http.StatusOK, map[string]string{"status": "reset"})
}
