package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/triage/common/llm"
	"basegraph.app/triage/internal/billing"
	"basegraph.app/triage/internal/docs"
	"basegraph.app/triage/internal/domain"
)

// ErrEmptyDraft is returned when the model produced no usable reply.
var ErrEmptyDraft = errors.New("empty draft reply")

const maxArticles = 3

const systemPrompt = `You draft replies for a customer support agent. The agent reviews every draft before it is sent.

Write in a calm, warm and direct tone. Acknowledge the customer's frustration once, without grovelling.
Address the concrete problem. When a help article is relevant, link it by URL.
Never promise refunds, credits or timelines. Never invent product behaviour.
Keep the reply under 150 words and sign off as "The Support Team".`

type draft struct {
	Body string `json:"body" jsonschema:"description=Plain text reply to the customer"`
}

var draftSchema = llm.GenerateSchema[draft]()

// Request carries what the drafter knows about a conversation.
type Request struct {
	Conversation domain.Conversation
	CustomerText string
	Result       domain.ScoringResult
	Account      *billing.Account
}

type Drafter interface {
	Draft(ctx context.Context, req Request) (string, error)
}

// AIDrafter writes a reply with a chat model, grounded on help-center articles.
type AIDrafter struct {
	client    llm.Client
	searcher  docs.Searcher
	maxTokens int
}

// NewAIDrafter builds a drafter. searcher may be nil when docs search is off.
func NewAIDrafter(client llm.Client, searcher docs.Searcher, maxTokens int) *AIDrafter {
	return &AIDrafter{client: client, searcher: searcher, maxTokens: maxTokens}
}

func (d *AIDrafter) Draft(ctx context.Context, req Request) (string, error) {
	articles := d.articles(ctx, req)

	var out draft
	_, err := d.client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(req, articles),
		SchemaName:   "draft_reply",
		Schema:       draftSchema,
		MaxTokens:    d.maxTokens,
		Temperature:  llm.Temp(0.3),
	}, &out)
	if err != nil {
		return "", fmt.Errorf("drafting reply: %w", err)
	}

	body := strings.TrimSpace(out.Body)
	if body == "" {
		return "", ErrEmptyDraft
	}
	return body, nil
}

// articles is best effort: a failed search drafts without docs.
func (d *AIDrafter) articles(ctx context.Context, req Request) []docs.Article {
	if d.searcher == nil {
		return nil
	}
	query := req.Result.Summary
	if query == "" {
		query = req.Conversation.Subject
	}
	found, err := d.searcher.Search(ctx, query, maxArticles)
	if err != nil {
		slog.WarnContext(ctx, "docs search failed, drafting without articles", "error", err)
		return nil
	}
	return found
}

func buildPrompt(req Request, articles []docs.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", req.Conversation.Subject)
	if name := req.Conversation.Customer.Name; name != "" {
		fmt.Fprintf(&b, "Customer name: %s\n", name)
	}
	if desc := req.Account.Describe(); desc != "" {
		fmt.Fprintf(&b, "Account: %s\n", desc)
	}
	if req.Result.Summary != "" {
		fmt.Fprintf(&b, "Issue: %s\n", req.Result.Summary)
	}
	fmt.Fprintf(&b, "Anger: %d/100, urgency: %d/100\n", req.Result.AngerScore, req.Result.UrgencyScore)

	if len(articles) > 0 {
		b.WriteString("\nHelp articles:\n")
		for _, a := range articles {
			fmt.Fprintf(&b, "- %s (%s): %s\n", a.Title, a.URL, a.Snippet)
		}
	}

	b.WriteString("\nCustomer messages:\n")
	b.WriteString(req.CustomerText)
	return b.String()
}
