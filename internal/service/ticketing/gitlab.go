package ticketing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
)

// pendingLabel marks Service Desk issues waiting on the customer.
const pendingLabel = "pending"

// GitLab treats a project's Service Desk as a mailbox: issues are
// conversations, notes by the support bot are customer emails, internal notes
// are internal notes and labels are tags.
type GitLab struct {
	client     *gitlab.Client
	projectID  int64
	supportBot string
}

func NewGitLab(cfg config.GitLabConfig) (*GitLab, error) {
	client, err := newGitLabClient(cfg.BaseURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return NewGitLabWithClient(client, cfg.ProjectID, cfg.SupportBotUser), nil
}

func NewGitLabWithClient(client *gitlab.Client, projectID int64, supportBot string) *GitLab {
	if supportBot == "" {
		supportBot = "support-bot"
	}
	return &GitLab{client: client, projectID: projectID, supportBot: supportBot}
}

func newGitLabClient(baseURL, token string) (*gitlab.Client, error) {
	opts := []gitlab.ClientOptionFunc{gitlab.WithoutRetries()}
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/api/v4"))
	}
	return gitlab.NewClient(token, opts...)
}

func (g *GitLab) Name() string {
	return config.ProviderGitLab
}

func (g *GitLab) ListConversations(ctx context.Context, params ListParams) (crawler.Page[domain.Conversation], error) {
	opts := &gitlab.ListProjectIssuesOptions{
		ListOptions: listOptions(params.Page, params.PageSize),
		OrderBy:     gitlab.Ptr("updated_at"),
		Sort:        gitlab.Ptr("desc"),
	}
	switch params.Status {
	case domain.ConversationStatusClosed:
		opts.State = gitlab.Ptr("closed")
	case domain.ConversationStatusPending:
		opts.State = gitlab.Ptr("opened")
		opts.Labels = &gitlab.LabelOptions{pendingLabel}
	case domain.ConversationStatusActive:
		opts.State = gitlab.Ptr("opened")
		opts.NotLabels = &gitlab.LabelOptions{pendingLabel}
	}

	issues, resp, err := g.client.Issues.ListProjectIssues(g.projectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return crawler.Page[domain.Conversation]{}, classifyGitLab("list issues", err)
	}

	convs := make([]domain.Conversation, 0, len(issues))
	for _, issue := range issues {
		if issue != nil {
			convs = append(convs, g.mapIssue(issue))
		}
	}

	return crawler.Page[domain.Conversation]{
		Items:      convs,
		TotalPages: int(resp.TotalPages),
		HasMore:    resp.NextPage != 0,
	}, nil
}

func (g *GitLab) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	issue, _, err := g.client.Issues.GetIssue(g.projectID, conversationID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classifyGitLab("get issue", err)
	}
	conv := g.mapIssue(issue)
	return &conv, nil
}

// ListThreads returns the issue description as the opening customer message on
// the first page, followed by non-system notes oldest first.
func (g *GitLab) ListThreads(ctx context.Context, conversationID int64, page int) (crawler.Page[domain.Thread], error) {
	page = max(page, 1)

	var threads []domain.Thread
	if page == 1 {
		issue, _, err := g.client.Issues.GetIssue(g.projectID, conversationID, nil, gitlab.WithContext(ctx))
		if err != nil {
			return crawler.Page[domain.Thread]{}, classifyGitLab("get issue", err)
		}
		if issue.Description != "" {
			th := domain.Thread{
				ExternalID: fmt.Sprintf("issue-%d", issue.ID),
				Kind:       domain.ThreadKindCustomerMessage,
				Body:       issue.Description,
			}
			if issue.Author != nil {
				th.Author = issue.Author.Username
			}
			if issue.CreatedAt != nil {
				th.CreatedAt = *issue.CreatedAt
			}
			threads = append(threads, th)
		}
	}

	notes, resp, err := g.client.Notes.ListIssueNotes(g.projectID, conversationID, &gitlab.ListIssueNotesOptions{
		ListOptions: listOptions(page, 100),
		OrderBy:     gitlab.Ptr("created_at"),
		Sort:        gitlab.Ptr("asc"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return crawler.Page[domain.Thread]{}, classifyGitLab("list issue notes", err)
	}

	for _, n := range notes {
		if n == nil || n.System {
			continue
		}
		threads = append(threads, g.mapNote(n))
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].CreatedAt.Before(threads[j].CreatedAt)
	})

	return crawler.Page[domain.Thread]{
		Items:      threads,
		TotalPages: int(resp.TotalPages),
		HasMore:    resp.NextPage != 0,
	}, nil
}

func (g *GitLab) PublishNote(ctx context.Context, conversationID int64, text string) error {
	_, _, err := g.client.Notes.CreateIssueNote(g.projectID, conversationID, &gitlab.CreateIssueNoteOptions{
		Body:     gitlab.Ptr(text),
		Internal: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return classifyGitLab("create issue note", err)
	}
	return nil
}

func (g *GitLab) AddTag(ctx context.Context, conversationID int64, tag string) error {
	_, _, err := g.client.Issues.UpdateIssue(g.projectID, conversationID, &gitlab.UpdateIssueOptions{
		AddLabels: &gitlab.LabelOptions{tag},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return classifyGitLab("add label", err)
	}
	return nil
}

// CreateDraftReply is unsupported: GitLab has no unsent replies.
func (g *GitLab) CreateDraftReply(context.Context, int64, int64, string) error {
	return fmt.Errorf("create draft reply: %w", ErrNotSupported)
}

func (g *GitLab) mapIssue(issue *gitlab.Issue) domain.Conversation {
	conv := domain.Conversation{
		ID:      issue.IID,
		Number:  issue.IID,
		Subject: issue.Title,
		Status:  domain.ConversationStatusActive,
		Tags:    append([]string{}, issue.Labels...),
		URL:     issue.WebURL,
		Customer: domain.Customer{
			Email: issue.ServiceDeskReplyTo,
		},
	}
	if issue.State == "closed" {
		conv.Status = domain.ConversationStatusClosed
	} else if conv.HasTag(pendingLabel) {
		conv.Status = domain.ConversationStatusPending
	}
	if issue.CreatedAt != nil {
		conv.CreatedAt = *issue.CreatedAt
	}
	return conv
}

func (g *GitLab) mapNote(n *gitlab.Note) domain.Thread {
	th := domain.Thread{
		ExternalID: fmt.Sprintf("%d", n.ID),
		Body:       n.Body,
		Author:     n.Author.Username,
		Kind:       domain.ThreadKindAgentReply,
	}
	switch {
	case n.Author.Username == g.supportBot:
		th.Kind = domain.ThreadKindCustomerMessage
	case n.Internal:
		th.Kind = domain.ThreadKindInternalNote
		th.State = domain.ThreadStatePublished
	}

	createdAt := n.CreatedAt
	if createdAt == nil {
		createdAt = n.UpdatedAt
	}
	if createdAt != nil {
		th.CreatedAt = *createdAt
	}
	return th
}

func listOptions(page, perPage int) gitlab.ListOptions {
	var opts gitlab.ListOptions
	setInt(&opts.Page, max(page, 1))
	if perPage > 0 {
		setInt(&opts.PerPage, perPage)
	}
	return opts
}

func setInt[N ~int | ~int64](dst *N, v int) {
	*dst = N(v)
}

func classifyGitLab(op string, err error) error {
	var errResp *gitlab.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return classifyStatus(op, errResp.Response.StatusCode, err)
	}
	return classifyTransport(op, err)
}
