package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/triage/internal/http/dto"
	"basegraph.app/triage/internal/http/handler"
	"basegraph.app/triage/internal/http/middleware"
	"basegraph.app/triage/internal/model"
	"basegraph.app/triage/internal/queue"
)

var _ = Describe("TriageHandler", func() {
	var (
		router   *gin.Engine
		producer *mockProducer
		runs     *mockRunStore
	)

	const apiKey = "test-admin-key"

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		producer = &mockProducer{}
		runs = &mockRunStore{}
		h := handler.NewTriageHandler(producer, runs, "helpscout", "X-Trace-Id")

		v1 := router.Group("/api/v1")
		v1.Use(middleware.RequireAdminAPIKey(apiKey))
		v1.POST("/conversations/:id/triage", h.Triage)
		v1.GET("/conversations/:id/runs", h.Runs)
		v1.POST("/crawl", h.Crawl)
	})

	do := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("X-Admin-API-Key", apiKey)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Triage", func() {
		It("queues a triage task", func() {
			w := do(http.MethodPost, "/api/v1/conversations/42/triage", nil)
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(producer.tasks).To(HaveLen(1))
			Expect(producer.tasks[0].TaskType).To(Equal(queue.TaskTypeTriageConversation))
			Expect(producer.tasks[0].ConversationID).To(Equal(int64(42)))
			Expect(producer.tasks[0].Force).To(BeFalse())
			Expect(producer.tasks[0].Source).To(Equal("admin"))
		})

		It("passes the force flag and trace header through", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/42/triage?force=true", nil)
			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("X-Trace-Id", "abc123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(producer.tasks[0].Force).To(BeTrue())
			Expect(*producer.tasks[0].TraceID).To(Equal("abc123"))

			var resp dto.EnqueueResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Force).To(BeTrue())
			Expect(resp.ConversationID).To(Equal(int64(42)))
		})

		It("rejects a bad conversation id", func() {
			w := do(http.MethodPost, "/api/v1/conversations/abc/triage", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(producer.tasks).To(BeEmpty())
		})

		It("rejects a bad force flag", func() {
			w := do(http.MethodPost, "/api/v1/conversations/42/triage?force=maybe", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 when the queue is down", func() {
			producer.enqueueFn = func(context.Context, queue.Task) error { return errors.New("redis down") }
			w := do(http.MethodPost, "/api/v1/conversations/42/triage", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})

		It("requires the admin key", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/42/triage", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(producer.tasks).To(BeEmpty())
		})
	})

	Describe("Crawl", func() {
		It("queues a crawl with an optional status", func() {
			w := do(http.MethodPost, "/api/v1/crawl", []byte(`{"status":"closed"}`))
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(producer.tasks).To(HaveLen(1))
			Expect(producer.tasks[0].TaskType).To(Equal(queue.TaskTypeCrawl))
			Expect(producer.tasks[0].Status).To(Equal("closed"))
		})

		It("accepts an empty body", func() {
			w := do(http.MethodPost, "/api/v1/crawl", nil)
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(producer.tasks[0].Status).To(BeEmpty())
		})

		It("rejects unknown statuses", func() {
			w := do(http.MethodPost, "/api/v1/crawl", []byte(`{"status":"archived"}`))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(producer.tasks).To(BeEmpty())
		})
	})

	Describe("Runs", func() {
		It("lists runs for the configured provider", func() {
			anger := int32(80)
			note := "Sentiment: Angry (anger 80/100, urgency 10/100, confidence high)"
			var gotProvider string
			var gotLimit int32
			runs.listFn = func(_ context.Context, provider string, conversationID int64, limit int32) ([]model.TriageRun, error) {
				gotProvider, gotLimit = provider, limit
				return []model.TriageRun{{
					ID:             9,
					ConversationID: conversationID,
					Provider:       provider,
					Action:         "initial",
					Status:         model.TriageRunStatusSucceeded,
					AngerScore:     &anger,
					Note:           &note,
					CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
				}}, nil
			}

			w := do(http.MethodGet, "/api/v1/conversations/42/runs?limit=5", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotProvider).To(Equal("helpscout"))
			Expect(gotLimit).To(Equal(int32(5)))

			var resp []dto.TriageRunResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(HaveLen(1))
			Expect(resp[0].ID).To(Equal(int64(9)))
			Expect(*resp[0].AngerScore).To(Equal(int32(80)))
			Expect(*resp[0].Note).To(Equal(note))
		})

		It("validates the limit", func() {
			w := do(http.MethodGet, "/api/v1/conversations/42/runs?limit=500", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 500 on store errors", func() {
			runs.listFn = func(context.Context, string, int64, int32) ([]model.TriageRun, error) {
				return nil, errors.New("db down")
			}
			w := do(http.MethodGet, "/api/v1/conversations/42/runs", nil)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
