// Package webhook handles Messenger platform callbacks: subscription
// verification and inbound message deliveries, which it resolves into
// conversation turns.
package webhook

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oorion/avery-messenger-bot/internal/config"
	"github.com/oorion/avery-messenger-bot/internal/ctxutil"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/messenger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/sentry"
	"github.com/oorion/avery-messenger-bot/internal/session"
	"github.com/oorion/avery-messenger-bot/internal/wit"
)

// attachmentReply is the canned answer for non-text messages.
const attachmentReply = "Sorry I can only process text messages for now."

// Handler handles Messenger webhook callbacks.
type Handler struct {
	pageID      string
	verifyToken string
	turnTimeout time.Duration

	sessions  *session.Store
	messenger *messenger.Client
	wit       *wit.Client
	actions   wit.Actions
	metrics   *metrics.Metrics
	logger    *logger.Logger

	wg sync.WaitGroup
}

// HandlerConfig holds configuration for creating a new Handler.
type HandlerConfig struct {
	PageID      string
	VerifyToken string
	BotConfig   *config.BotConfig
	Sessions    *session.Store
	Messenger   *messenger.Client
	Wit         *wit.Client
	Actions     wit.Actions
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		pageID:      cfg.PageID,
		verifyToken: cfg.VerifyToken,
		turnTimeout: cfg.BotConfig.TurnTimeout,
		sessions:    cfg.Sessions,
		messenger:   cfg.Messenger,
		wit:         cfg.Wit,
		actions:     cfg.Actions,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.WithModule("webhook"),
	}
}

// HandleVerify is the Gin handler for the platform's subscription handshake.
// Messenger sends hub.mode=subscribe with the configured verify token and
// expects the challenge echoed back.
func (h *Handler) HandleVerify(c *gin.Context) {
	if h.verifyToken == "" {
		h.logger.Error("Verify token not configured, rejecting handshake")
		h.metrics.RecordWebhook("verify", "unconfigured", 0)
		c.Status(http.StatusBadRequest)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode != "subscribe" || token != h.verifyToken {
		h.logger.WithField("hub_mode", mode).Warn("Webhook verification failed")
		h.metrics.RecordWebhook("verify", "rejected", 0)
		c.Status(http.StatusBadRequest)
		return
	}

	h.metrics.RecordWebhook("verify", "success", 0)
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// HandleMessage is the Gin handler for message deliveries. The platform
// retries deliveries that do not get a 200, so the response is sent before
// any processing happens and processing failures never surface here.
func (h *Handler) HandleMessage(c *gin.Context) {
	start := time.Now()

	var env messenger.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.logger.WithError(err).Warn("Failed to decode webhook delivery")
		h.metrics.RecordWebhook("message", "malformed", time.Since(start).Seconds())
		c.Status(http.StatusOK)
		return
	}

	messaging, err := messenger.FirstMessaging(&env, h.pageID)
	if err != nil {
		h.logger.WithError(err).Warn("Ignoring webhook delivery")
		h.metrics.RecordWebhook("message", "ignored", time.Since(start).Seconds())
		c.Status(http.StatusOK)
		return
	}

	// 200 goes out now; everything below runs after the response.
	c.Status(http.StatusOK)

	if messaging.Message == nil || messaging.Sender.ID == "" {
		h.metrics.RecordWebhook("message", "ignored", time.Since(start).Seconds())
		return
	}
	h.metrics.RecordWebhook("message", "received", time.Since(start).Seconds())

	msg := *messaging.Message
	senderID := messaging.Sender.ID
	tracingCtx := ctxutil.PreserveTracing(c.Request.Context())

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async message processing")
			}
		}()

		ctx, cancel := context.WithTimeout(tracingCtx, h.turnTimeout)
		defer cancel()
		ctx = ctxutil.WithSenderID(ctx, senderID)

		h.processMessage(ctx, senderID, &msg)
	})
}

// processMessage runs one conversation turn for an inbound message.
func (h *Handler) processMessage(ctx context.Context, senderID string, msg *messenger.Message) {
	log := h.logger.WithField("sender_id", senderID)

	// Attachments win over text; a message carrying both gets the canned reply.
	if msg.HasAttachments() {
		if err := h.messenger.SendText(ctx, senderID, attachmentReply); err != nil {
			log.WithError(err).Error("Failed to send attachment reply")
		}
		return
	}
	if !msg.HasText() {
		return
	}

	sessionID, err := h.sessions.FindOrCreate(ctx, senderID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve session")
		sentry.CaptureExceptionWithContext(ctx, err)
		return
	}
	log = log.WithField("session_id", sessionID)

	// One turn at a time per session; concurrent deliveries queue here.
	release := h.sessions.Acquire(sessionID)
	defer release()

	sessCtx, err := h.sessions.Context(ctx, sessionID)
	if err != nil {
		log.WithError(err).Error("Failed to load conversation context")
		sentry.CaptureExceptionWithContext(ctx, err)
		return
	}

	turnStart := time.Now()
	finalCtx, turnErr := h.wit.RunActions(ctx, sessionID, msg.Text, sessCtx, h.actions)
	h.metrics.RecordTurn(time.Since(turnStart).Seconds())

	if turnErr != nil {
		log.WithError(turnErr).Error("Conversation turn failed")
		sentry.CaptureExceptionWithContext(ctx, turnErr)
	}

	// Persist whatever context the turn produced, even after a mid-turn
	// failure, so partial progress survives into the next turn. A turn that
	// never replaced the context hands back the same pointer; refresh the
	// session's idle clock instead of rewriting identical state.
	switch {
	case finalCtx == nil:
	case finalCtx == sessCtx:
		if err := h.sessions.Touch(ctx, sessionID); err != nil {
			log.WithError(err).Error("Failed to refresh session activity")
			sentry.CaptureExceptionWithContext(ctx, err)
		}
	default:
		if err := h.sessions.SetContext(ctx, sessionID, finalCtx); err != nil {
			log.WithError(err).Error("Failed to persist conversation context")
			sentry.CaptureExceptionWithContext(ctx, err)
		}
	}
}

// Shutdown waits for in-flight turns to finish or the context to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
