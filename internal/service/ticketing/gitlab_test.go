package ticketing_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/service/ticketing"
)

type gitlabAPIMock struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func newGitLabAPIMock() *gitlabAPIMock {
	m := &gitlabAPIMock{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("PRIVATE-TOKEN")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		m.mu.Lock()
		m.requests = append(m.requests, rec)
		m.mu.Unlock()

		if m.status != 0 {
			w.WriteHeader(m.status)
			_, _ = w.Write([]byte(`{"message":"denied"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v4/projects/42/issues":
			w.Header().Set("X-Total-Pages", "4")
			w.Header().Set("X-Next-Page", "2")
			_, _ = w.Write([]byte(`[
				{"id": 900, "iid": 5, "title": "Cannot log in", "state": "opened", "labels": ["pending", "vip"],
				 "web_url": "https://gitlab.example.com/support/desk/-/issues/5",
				 "service_desk_reply_to": "sam@example.com", "created_at": "2025-03-01T10:00:00Z"},
				{"id": 901, "iid": 6, "title": "Refund", "state": "closed", "labels": []}
			]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v4/projects/42/issues/5":
			_, _ = w.Write([]byte(`{"id": 900, "iid": 5, "title": "Cannot log in", "state": "opened",
				"description": "I cannot log in", "author": {"username": "support-bot"},
				"created_at": "2025-03-01T10:00:00Z"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v4/projects/42/issues/5/notes":
			_, _ = w.Write([]byte(`[
				{"id": 11, "body": "still broken", "author": {"username": "support-bot"}, "created_at": "2025-03-01T12:00:00Z"},
				{"id": 12, "body": "changed the label", "system": true, "author": {"username": "alice"}, "created_at": "2025-03-01T12:30:00Z"},
				{"id": 13, "body": "analysis", "internal": true, "author": {"username": "triage-bot"}, "created_at": "2025-03-01T13:00:00Z"},
				{"id": 14, "body": "we are on it", "author": {"username": "alice"}, "created_at": "2025-03-01T11:00:00Z"}
			]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v4/projects/42/issues/5/notes":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 20}`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/v4/projects/42/issues/5":
			_, _ = w.Write([]byte(`{"id": 900, "iid": 5}`))
		default:
			http.NotFound(w, r)
		}
	}))
	return m
}

func (m *gitlabAPIMock) last() recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

var _ = Describe("GitLab", func() {
	var (
		ctx  context.Context
		mock *gitlabAPIMock
		gl   *ticketing.GitLab
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = newGitLabAPIMock()
		var err error
		gl, err = ticketing.NewGitLab(config.GitLabConfig{
			BaseURL:        mock.server.URL,
			Token:          "glpat",
			ProjectID:      42,
			SupportBotUser: "support-bot",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mock.server.Close()
	})

	It("lists service desk issues as conversations", func() {
		page, err := gl.ListConversations(ctx, ticketing.ListParams{Status: domain.ConversationStatusActive, Page: 1, PageSize: 20})
		Expect(err).NotTo(HaveOccurred())
		Expect(page.TotalPages).To(Equal(4))
		Expect(page.HasMore).To(BeTrue())
		Expect(page.Items).To(HaveLen(2))

		Expect(page.Items[0].ID).To(Equal(int64(5)))
		Expect(page.Items[0].Status).To(Equal(domain.ConversationStatusPending))
		Expect(page.Items[0].Customer.Email).To(Equal("sam@example.com"))
		Expect(page.Items[0].Tags).To(ConsistOf("pending", "vip"))
		Expect(page.Items[1].Status).To(Equal(domain.ConversationStatusClosed))

		req := mock.last()
		Expect(req.Auth).To(Equal("glpat"))
		Expect(req.Query).To(ContainSubstring("state=opened"))
		Expect(req.Query).To(ContainSubstring("per_page=20"))
	})

	It("maps the description and notes into chronological threads", func() {
		page, err := gl.ListThreads(ctx, 5, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Items).To(HaveLen(4))

		Expect(page.Items[0].Body).To(Equal("I cannot log in"))
		Expect(page.Items[0].Kind).To(Equal(domain.ThreadKindCustomerMessage))
		Expect(page.Items[1].Body).To(Equal("we are on it"))
		Expect(page.Items[1].Kind).To(Equal(domain.ThreadKindAgentReply))
		Expect(page.Items[2].Kind).To(Equal(domain.ThreadKindCustomerMessage))
		Expect(page.Items[3].Kind).To(Equal(domain.ThreadKindInternalNote))
	})

	It("publishes internal notes", func() {
		Expect(gl.PublishNote(ctx, 5, "analysis")).To(Succeed())
		req := mock.last()
		Expect(req.Method).To(Equal(http.MethodPost))
		Expect(req.Body["body"]).To(Equal("analysis"))
		Expect(req.Body["internal"]).To(Equal(true))
	})

	It("adds labels for tags", func() {
		Expect(gl.AddTag(ctx, 5, "sentiment-angry")).To(Succeed())
		req := mock.last()
		Expect(req.Method).To(Equal(http.MethodPut))
		Expect(strings.Contains(req.Query+toString(req.Body["add_labels"]), "sentiment-angry")).To(BeTrue())
	})

	It("does not support draft replies", func() {
		err := gl.CreateDraftReply(ctx, 5, 0, "hi")
		Expect(errors.Is(err, ticketing.ErrNotSupported)).To(BeTrue())
	})

	It("classifies rejected tokens as unauthorized", func() {
		mock.status = http.StatusUnauthorized
		_, err := gl.GetConversation(ctx, 5)
		Expect(errors.Is(err, ticketing.ErrUnauthorized)).To(BeTrue(), err.Error())
	})
})

func toString(v any) string {
	if v == nil {
		return ""
	}
	data, _ := json.Marshal(v)
	return string(data)
}
