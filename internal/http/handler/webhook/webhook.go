package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/triage/common/logger"
	"basegraph.app/triage/internal/http/dto"
	"basegraph.app/triage/internal/mapper"
	"basegraph.app/triage/internal/queue"
)

const maxBodyBytes = 1 << 20

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNoSecret         = errors.New("webhook secret not configured")
)

// Verifier authenticates a raw webhook delivery.
type Verifier interface {
	Verify(headers http.Header, body []byte) error
}

// HelpScoutVerifier checks X-HelpScout-Signature, a base64 HMAC-SHA1 of the
// body keyed by the webhook secret.
type HelpScoutVerifier struct {
	Secret string
}

func (v HelpScoutVerifier) Verify(headers http.Header, body []byte) error {
	if v.Secret == "" {
		return ErrNoSecret
	}
	sig := headers.Get("X-HelpScout-Signature")
	if sig == "" {
		return ErrMissingSignature
	}
	mac := hmac.New(sha1.New, []byte(v.Secret))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return ErrInvalidSignature
	}
	return nil
}

// GitLabVerifier checks the shared X-Gitlab-Token.
type GitLabVerifier struct {
	Token string
}

func (v GitLabVerifier) Verify(headers http.Header, _ []byte) error {
	if v.Token == "" {
		return ErrNoSecret
	}
	token := headers.Get("X-Gitlab-Token")
	if token == "" {
		return ErrMissingSignature
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.Token)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Handler turns verified provider webhooks into triage tasks.
type Handler struct {
	provider    string
	verifier    Verifier
	mapper      mapper.EventMapper
	producer    queue.Producer
	traceHeader string
}

func NewHandler(provider string, verifier Verifier, m mapper.EventMapper, producer queue.Producer, traceHeader string) *Handler {
	return &Handler{
		provider:    provider,
		verifier:    verifier,
		mapper:      m,
		producer:    producer,
		traceHeader: traceHeader,
	}
}

func (h *Handler) HandleEvent(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Provider:  &h.provider,
		Component: "triage.http.webhook",
	})

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := h.verifier.Verify(c.Request.Header, body); err != nil {
		slog.WarnContext(ctx, "rejected webhook", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var bodyMap map[string]any
	if err := json.Unmarshal(body, &bodyMap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	event, err := h.mapper.Map(ctx, bodyMap, headers)
	if err != nil {
		slog.WarnContext(ctx, "unsupported webhook event, ignoring", "error", err)
		c.JSON(http.StatusOK, dto.WebhookResponse{Status: "ok", Message: "event type not supported"})
		return
	}
	if !event.TriggersTriage() {
		slog.DebugContext(ctx, "webhook event does not trigger triage",
			"event", event.Type,
			"conversation_id", event.ConversationID)
		c.JSON(http.StatusOK, dto.WebhookResponse{Status: "ignored", Event: string(event.Type)})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{ConversationID: &event.ConversationID})
	task := queue.Task{
		TaskType:       queue.TaskTypeTriageConversation,
		ConversationID: event.ConversationID,
		Source:         "webhook:" + h.provider,
		TraceID:        traceID(c, h.traceHeader),
	}
	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue webhook triage", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue triage"})
		return
	}

	slog.InfoContext(ctx, "webhook queued triage", "event", event.Type)
	c.JSON(http.StatusAccepted, dto.WebhookResponse{Status: "queued", Event: string(event.Type)})
}

func traceID(c *gin.Context, header string) *string {
	id := ""
	if header != "" {
		id = c.GetHeader(header)
	}
	if id == "" {
		if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
			id = spanCtx.TraceID().String()
		}
	}
	if id == "" {
		return nil
	}
	return &id
}
