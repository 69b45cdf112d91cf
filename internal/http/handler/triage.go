package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/triage/internal/http/dto"
	"basegraph.app/triage/internal/model"
	"basegraph.app/triage/internal/queue"
	"basegraph.app/triage/internal/store"
)

const defaultRunLimit = 20

// TriageHandler serves the admin API: manual triage, crawls and run history.
type TriageHandler struct {
	producer    queue.Producer
	runs        store.TriageRunStore
	provider    string
	traceHeader string
}

func NewTriageHandler(producer queue.Producer, runs store.TriageRunStore, provider, traceHeader string) *TriageHandler {
	return &TriageHandler{
		producer:    producer,
		runs:        runs,
		provider:    provider,
		traceHeader: traceHeader,
	}
}

// Triage queues one conversation. force=true requests a read-only reanalysis,
// which the worker only honours for closed conversations.
func (h *TriageHandler) Triage(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}

	force := false
	if raw := c.Query("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid force flag"})
			return
		}
		force = parsed
	}

	task := queue.Task{
		TaskType:       queue.TaskTypeTriageConversation,
		ConversationID: conversationID,
		Force:          force,
		Source:         "admin",
		TraceID:        h.traceID(c),
	}
	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue triage", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue triage"})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{Status: "queued", ConversationID: conversationID, Force: force})
}

func (h *TriageHandler) Crawl(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CrawlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	task := queue.Task{
		TaskType: queue.TaskTypeCrawl,
		Status:   req.Status,
		Source:   "admin",
		TraceID:  h.traceID(c),
	}
	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue crawl", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue crawl"})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{Status: "queued"})
}

// Runs lists the most recent triage passes for a conversation.
func (h *TriageHandler) Runs(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}

	limit := int32(defaultRunLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = int32(n)
	}

	runs, err := h.runs.ListByConversation(ctx, h.provider, conversationID, limit)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to list triage runs", "error", err, "conversation_id", conversationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list triage runs"})
		return
	}

	resp := make([]dto.TriageRunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TriageHandler) conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

func (h *TriageHandler) traceID(c *gin.Context) *string {
	id := c.GetHeader(h.traceHeader)
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

func toRunResponse(run model.TriageRun) dto.TriageRunResponse {
	return dto.TriageRunResponse{
		ID:             run.ID,
		ConversationID: run.ConversationID,
		Provider:       run.Provider,
		Action:         run.Action,
		Status:         run.Status,
		AngerScore:     run.AngerScore,
		UrgencyScore:   run.UrgencyScore,
		Confidence:     run.Confidence,
		Source:         run.Source,
		Degraded:       run.Degraded,
		NotePublished:  run.NotePublished,
		Forced:         run.Forced,
		Error:          run.Error,
		Note:           run.Note,
		CreatedAt:      run.CreatedAt,
	}
}
