package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
)

const defaultHelpScoutURL = "https://api.helpscout.net"

// HelpScout talks to the Help Scout Mailbox API v2.
type HelpScout struct {
	baseURL   string
	mailboxID int64
	http      *http.Client
}

// NewHelpScout authenticates with the OAuth2 client credentials flow. A non-nil
// base client is used as the transport for both token and API calls.
func NewHelpScout(cfg config.HelpScoutConfig, base *http.Client) *HelpScout {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultHelpScoutURL
	}

	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppSecret,
		TokenURL:     baseURL + "/v2/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	client := cc.Client(ctx)
	client.Timeout = 30 * time.Second

	return &HelpScout{
		baseURL:   baseURL,
		mailboxID: cfg.MailboxID,
		http:      client,
	}
}

func (h *HelpScout) Name() string {
	return config.ProviderHelpScout
}

type hsPage struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

type hsTag struct {
	ID  int64  `json:"id"`
	Tag string `json:"tag"`
}

type hsPerson struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	First string `json:"first"`
	Last  string `json:"last"`
	Email string `json:"email"`
}

func (p hsPerson) name() string {
	return strings.TrimSpace(p.First + " " + p.Last)
}

type hsConversation struct {
	ID              int64     `json:"id"`
	Number          int64     `json:"number"`
	Subject         string    `json:"subject"`
	Status          string    `json:"status"`
	MailboxID       int64     `json:"mailboxId"`
	CreatedAt       time.Time `json:"createdAt"`
	Tags            []hsTag   `json:"tags"`
	PrimaryCustomer hsPerson  `json:"primaryCustomer"`
	Links           struct {
		Web struct {
			Href string `json:"href"`
		} `json:"web"`
	} `json:"_links"`
}

type hsThread struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	State     string    `json:"state"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy hsPerson  `json:"createdBy"`
}

func (h *HelpScout) ListConversations(ctx context.Context, params ListParams) (crawler.Page[domain.Conversation], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(max(params.Page, 1)))
	if params.Status != "" {
		q.Set("status", string(params.Status))
	}
	if h.mailboxID != 0 {
		q.Set("mailbox", strconv.FormatInt(h.mailboxID, 10))
	}
	q.Set("sortField", "modifiedAt")
	q.Set("sortOrder", "desc")

	var resp struct {
		Embedded struct {
			Conversations []hsConversation `json:"conversations"`
		} `json:"_embedded"`
		Page hsPage `json:"page"`
	}
	if err := h.do(ctx, "list conversations", http.MethodGet, "/v2/conversations?"+q.Encode(), nil, &resp); err != nil {
		return crawler.Page[domain.Conversation]{}, err
	}

	convs := make([]domain.Conversation, 0, len(resp.Embedded.Conversations))
	for _, c := range resp.Embedded.Conversations {
		convs = append(convs, mapHSConversation(c))
	}
	// Help Scout fixes the page size at 50 and ignores params.PageSize. Pages
	// are returned whole; the crawler's item cap bounds the total.

	return crawler.Page[domain.Conversation]{
		Items:      convs,
		TotalPages: resp.Page.TotalPages,
		HasMore:    resp.Page.Number < resp.Page.TotalPages,
	}, nil
}

func (h *HelpScout) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	var resp hsConversation
	if err := h.do(ctx, "get conversation", http.MethodGet, fmt.Sprintf("/v2/conversations/%d", conversationID), nil, &resp); err != nil {
		return nil, err
	}
	conv := mapHSConversation(resp)
	return &conv, nil
}

func (h *HelpScout) ListThreads(ctx context.Context, conversationID int64, page int) (crawler.Page[domain.Thread], error) {
	var resp struct {
		Embedded struct {
			Threads []hsThread `json:"threads"`
		} `json:"_embedded"`
		Page hsPage `json:"page"`
	}
	path := fmt.Sprintf("/v2/conversations/%d/threads?page=%d", conversationID, max(page, 1))
	if err := h.do(ctx, "list threads", http.MethodGet, path, nil, &resp); err != nil {
		return crawler.Page[domain.Thread]{}, err
	}

	threads := make([]domain.Thread, 0, len(resp.Embedded.Threads))
	for _, t := range resp.Embedded.Threads {
		if th, ok := mapHSThread(t); ok {
			threads = append(threads, th)
		}
	}

	return crawler.Page[domain.Thread]{
		Items:      threads,
		TotalPages: resp.Page.TotalPages,
		HasMore:    resp.Page.Number < resp.Page.TotalPages,
	}, nil
}

func (h *HelpScout) PublishNote(ctx context.Context, conversationID int64, text string) error {
	body := map[string]any{"text": textToHTML(text)}
	return h.do(ctx, "publish note", http.MethodPost, fmt.Sprintf("/v2/conversations/%d/notes", conversationID), body, nil)
}

// AddTag merges tag into the existing set; the tags endpoint replaces all tags.
func (h *HelpScout) AddTag(ctx context.Context, conversationID int64, tag string) error {
	conv, err := h.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.HasTag(tag) {
		return nil
	}

	tags := append(append([]string{}, conv.Tags...), tag)
	body := map[string]any{"tags": tags}
	return h.do(ctx, "add tag", http.MethodPut, fmt.Sprintf("/v2/conversations/%d/tags", conversationID), body, nil)
}

func (h *HelpScout) CreateDraftReply(ctx context.Context, conversationID, customerID int64, text string) error {
	body := map[string]any{
		"customer": map[string]any{"id": customerID},
		"text":     textToHTML(text),
		"draft":    true,
	}
	return h.do(ctx, "create draft reply", http.MethodPost, fmt.Sprintf("/v2/conversations/%d/reply", conversationID), body, nil)
}

func (h *HelpScout) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/hal+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return classifyStatus(op+": token", retrieveErr.Response.StatusCode, retrieveErr)
		}
		return classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return classifyStatus(op, resp.StatusCode, errors.New(strings.TrimSpace(string(msg))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func mapHSConversation(c hsConversation) domain.Conversation {
	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		tags = append(tags, t.Tag)
	}

	return domain.Conversation{
		ID:      c.ID,
		Number:  c.Number,
		Subject: c.Subject,
		Status:  mapHSStatus(c.Status),
		Tags:    tags,
		Customer: domain.Customer{
			ID:    c.PrimaryCustomer.ID,
			Email: c.PrimaryCustomer.Email,
			Name:  c.PrimaryCustomer.name(),
		},
		MailboxID: c.MailboxID,
		URL:       c.Links.Web.Href,
		CreatedAt: c.CreatedAt,
	}
}

func mapHSStatus(s string) domain.ConversationStatus {
	switch s {
	case "pending":
		return domain.ConversationStatusPending
	case "closed", "spam":
		return domain.ConversationStatusClosed
	default:
		return domain.ConversationStatusActive
	}
}

// mapHSThread drops thread types that carry no conversation content
// (line items, forwards, phone and chat stubs).
func mapHSThread(t hsThread) (domain.Thread, bool) {
	th := domain.Thread{
		ExternalID: strconv.FormatInt(t.ID, 10),
		Body:       t.Body,
		Author:     t.CreatedBy.Email,
		CreatedAt:  t.CreatedAt,
		State:      domain.ThreadStatePublished,
	}
	if t.State == "draft" {
		th.State = domain.ThreadStateDraft
	}

	switch t.Type {
	case "customer":
		th.Kind = domain.ThreadKindCustomerMessage
		th.State = ""
	case "message":
		th.Kind = domain.ThreadKindAgentReply
		if th.State == domain.ThreadStateDraft {
			th.Kind = domain.ThreadKindDraftReply
		}
	case "note":
		th.Kind = domain.ThreadKindInternalNote
	default:
		return domain.Thread{}, false
	}
	return th, true
}

// textToHTML escapes plain note text and keeps its line breaks. HTML comments
// survive unescaped so embedded markers stay hidden and parseable.
func textToHTML(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "<!--")
		if start < 0 {
			b.WriteString(escapeLines(rest))
			break
		}
		end := strings.Index(rest[start:], "-->")
		if end < 0 {
			b.WriteString(escapeLines(rest))
			break
		}
		end += start + len("-->")
		b.WriteString(escapeLines(rest[:start]))
		b.WriteString(rest[start:end])
		rest = rest[end:]
	}
	return b.String()
}

func escapeLines(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
