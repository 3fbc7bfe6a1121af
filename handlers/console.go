package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mixa1334/ProductApp/form"
	"github.com/mixa1334/ProductApp/models"
	"github.com/mixa1334/ProductApp/session"
	"github.com/mixa1334/ProductApp/table"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "product-console"

type ConsoleHandler struct {
	store  *session.Store
	logger *zap.Logger
	// settleTimeout bounds how long a request waits for the remote calls it
	// triggered before answering with the in-progress view.
	settleTimeout time.Duration
}

type inputRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type sessionResponse struct {
	ID   string     `json:"id"`
	View table.View `json:"view"`
}

func NewConsoleHandler(store *session.Store, settleTimeout time.Duration, logger *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{
		store:         store,
		logger:        logger,
		settleTimeout: settleTimeout,
	}
}

func (h *ConsoleHandler) Register(router gin.IRouter) {
	router.POST("/sessions", h.OpenSession)
	router.GET("/sessions/:id", h.GetView)
	router.DELETE("/sessions/:id", h.CloseSession)
	router.POST("/sessions/:id/actions", h.TableAction)
	router.POST("/sessions/:id/form/input", h.FormInput)
	router.POST("/sessions/:id/form/complete", h.FormComplete)
	router.POST("/sessions/:id/form/cancel", h.FormCancel)
	router.GET("/sessions/:id/stream", h.Stream)
}

func (h *ConsoleHandler) OpenSession(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "OpenSession")
	defer span.End()

	sess, err := h.store.Open(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to open session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))

	view, ok := h.settledView(ctx, c, sess)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{ID: sess.ID, View: view})
}

func (h *ConsoleHandler) GetView(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	view, err := sess.View(c.Request.Context())
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: sess.ID, View: view})
}

func (h *ConsoleHandler) CloseSession(c *gin.Context) {
	if err := h.store.Close(c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

func (h *ConsoleHandler) TableAction(c *gin.Context) {
	var req models.ControlEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.apply(c, "TableAction", func(t *table.Table) error {
		return t.HandleTableAction(req)
	}, attribute.String("table.action", string(req.ResolveAction())))
}

func (h *ConsoleHandler) FormInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.apply(c, "FormInput", func(t *table.Table) error {
		f, err := t.Form()
		if err != nil {
			return err
		}
		return f.HandleInput(req.Field, req.Value)
	}, attribute.String("form.field", req.Field))
}

func (h *ConsoleHandler) FormComplete(c *gin.Context) {
	h.apply(c, "FormComplete", func(t *table.Table) error {
		f, err := t.Form()
		if err != nil {
			return err
		}
		if err := f.Complete(); err != nil && !errors.Is(err, form.ErrInvalidDraft) {
			return err
		}
		// A rejected draft is reported through the form's error message.
		return nil
	})
}

func (h *ConsoleHandler) FormCancel(c *gin.Context) {
	h.apply(c, "FormCancel", func(t *table.Table) error {
		f, err := t.Form()
		if err != nil {
			return err
		}
		f.Cancel()
		return nil
	})
}

// Stream pushes a server-sent "view" event after every table state change.
func (h *ConsoleHandler) Stream(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	views, unsubscribe, err := sess.Subscribe(c.Request.Context())
	if err != nil {
		h.sessionError(c, err)
		return
	}
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-sess.Done():
			return false
		case view := <-views:
			c.SSEvent("view", view)
			return true
		}
	})
}

func (h *ConsoleHandler) apply(c *gin.Context, name string, fn func(t *table.Table) error, attrs ...attribute.KeyValue) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), name)
	defer span.End()
	span.SetAttributes(attrs...)

	sess, ok := h.session(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))

	if err := sess.Do(ctx, fn); err != nil {
		span.RecordError(err)
		h.sessionError(c, err)
		return
	}

	view, ok := h.settledView(ctx, c, sess)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: sess.ID, View: view})
}

// settledView waits up to settleTimeout for pending remote calls, then returns
// the current view, loading or not.
func (h *ConsoleHandler) settledView(ctx context.Context, c *gin.Context, sess *session.Session) (table.View, bool) {
	if h.settleTimeout > 0 {
		settleCtx, cancel := context.WithTimeout(ctx, h.settleTimeout)
		err := sess.Settle(settleCtx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			h.sessionError(c, err)
			return table.View{}, false
		}
	}

	view, err := sess.View(ctx)
	if err != nil {
		h.sessionError(c, err)
		return table.View{}, false
	}
	return view, true
}

func (h *ConsoleHandler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return nil, false
	}
	return sess, true
}

func (h *ConsoleHandler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, table.ErrUnknownAction),
		errors.Is(err, models.ErrUnknownField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, table.ErrProductNotLoaded),
		errors.Is(err, table.ErrFormClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Session request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
