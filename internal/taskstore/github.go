package taskstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// GitHubStore implements Store against a GitHub repository: work units are
// issues, change sets are pull requests, labels are issue labels.
type GitHubStore struct {
	client *github.Client
	owner  string
	repo   string
}

var _ Store = (*GitHubStore)(nil)

// NewGitHubStore creates a store for "owner/repo" authenticated with a
// personal access token.
func NewGitHubStore(ctx context.Context, token, ownerRepo string) (*GitHubStore, error) {
	if token == "" {
		return nil, fmt.Errorf("taskstore: github token not set")
	}
	owner, repo, ok := strings.Cut(ownerRepo, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("taskstore: repository must be owner/repo, got %q", ownerRepo)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &GitHubStore{client: github.NewClient(tc), owner: owner, repo: repo}, nil
}

// WithBaseURL points the store at a different API endpoint. Used by tests
// and GitHub Enterprise installs.
func (g *GitHubStore) WithBaseURL(baseURL string) (*GitHubStore, error) {
	c, err := g.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("taskstore: base url: %w", err)
	}
	g.client = c
	return g, nil
}

// newGitHubStoreForTest builds a store around a plain http client pointed at
// a test server.
func newGitHubStoreForTest(baseURL, owner, repo string) (*GitHubStore, error) {
	c, err := github.NewClient(http.DefaultClient).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, err
	}
	return &GitHubStore{client: c, owner: owner, repo: repo}, nil
}

func (g *GitHubStore) ListUnits(ctx context.Context, filter UnitFilter) ([]*model.WorkUnit, error) {
	state := "open"
	if filter.State == model.UnitClosed {
		state = "closed"
	}

	opts := &github.IssueListByRepoOptions{
		State:       state,
		Labels:      filter.Labels,
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []*model.WorkUnit
	for {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("taskstore: list issues: %w", err)
		}
		for _, is := range issues {
			// Pull requests show up in the issues API; units are issues only.
			if is.IsPullRequest() {
				continue
			}
			u := issueToUnit(is)
			if filter.Unassigned && u.Assignee() != "" {
				continue
			}
			out = append(out, u)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHubStore) GetUnit(ctx context.Context, id int) (*model.WorkUnit, error) {
	is, resp, err := g.client.Issues.Get(ctx, g.owner, g.repo, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("taskstore: get issue %d: %w", id, err)
	}
	return issueToUnit(is), nil
}

func (g *GitHubStore) CreateUnit(ctx context.Context, title, body string, labels []string) (*model.WorkUnit, error) {
	req := &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	}
	is, _, err := g.client.Issues.Create(ctx, g.owner, g.repo, req)
	if err != nil {
		return nil, fmt.Errorf("taskstore: create issue: %w", err)
	}
	return issueToUnit(is), nil
}

func (g *GitHubStore) UpdateLabels(ctx context.Context, id int, add, remove []string) error {
	if len(add) > 0 {
		_, _, err := g.client.Issues.AddLabelsToIssue(ctx, g.owner, g.repo, id, add)
		if err != nil {
			return fmt.Errorf("taskstore: add labels to %d: %w", id, err)
		}
	}
	for _, l := range remove {
		resp, err := g.client.Issues.RemoveLabelForIssue(ctx, g.owner, g.repo, id, l)
		if err != nil {
			// Removing an absent label must stay idempotent.
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				continue
			}
			return fmt.Errorf("taskstore: remove label %q from %d: %w", l, id, err)
		}
	}
	return nil
}

func (g *GitHubStore) AddComment(ctx context.Context, id int, body string) error {
	_, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, id, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("taskstore: comment on %d: %w", id, err)
	}
	return nil
}

func (g *GitHubStore) CloseUnit(ctx context.Context, id int) error {
	_, _, err := g.client.Issues.Edit(ctx, g.owner, g.repo, id, &github.IssueRequest{
		State: github.String("closed"),
	})
	if err != nil {
		return fmt.Errorf("taskstore: close issue %d: %w", id, err)
	}
	return nil
}

func (g *GitHubStore) ListOpenChangeSets(ctx context.Context) ([]*model.ChangeSet, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []*model.ChangeSet
	for {
		prs, resp, err := g.client.PullRequests.List(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("taskstore: list pull requests: %w", err)
		}
		for _, pr := range prs {
			out = append(out, prToChangeSet(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHubStore) GetReviewState(ctx context.Context, id int) (model.ReviewState, error) {
	reviews, resp, err := g.client.PullRequests.ListReviews(ctx, g.owner, g.repo, id, &github.ListOptions{PerPage: 100})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("taskstore: list reviews for %d: %w", id, err)
	}

	// Latest non-comment review per reviewer wins; any outstanding
	// CHANGES_REQUESTED blocks, otherwise one APPROVED suffices.
	latest := make(map[string]string)
	for _, r := range reviews {
		state := r.GetState()
		if state != "APPROVED" && state != "CHANGES_REQUESTED" {
			continue
		}
		latest[r.GetUser().GetLogin()] = state
	}

	verdict := model.ReviewPending
	for _, state := range latest {
		if state == "CHANGES_REQUESTED" {
			return model.ReviewChangesRequested, nil
		}
		verdict = model.ReviewApproved
	}
	return verdict, nil
}

func (g *GitHubStore) Merge(ctx context.Context, id int, strategy model.MergeStrategy) error {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, id)
	if err != nil {
		return fmt.Errorf("taskstore: get pull request %d: %w", id, err)
	}

	opts := &github.PullRequestOptions{MergeMethod: string(strategy)}
	_, _, err = g.client.PullRequests.Merge(ctx, g.owner, g.repo, id, "", opts)
	if err != nil {
		return fmt.Errorf("taskstore: merge %d: %w", id, err)
	}

	if branch := pr.GetHead().GetRef(); branch != "" {
		// Branch cleanup is best effort; the merge already landed.
		_, _ = g.client.Git.DeleteRef(ctx, g.owner, g.repo, "heads/"+branch)
	}
	return nil
}

func (g *GitHubStore) Close() error { return nil }

func issueToUnit(is *github.Issue) *model.WorkUnit {
	state := model.UnitOpen
	if is.GetState() == "closed" {
		state = model.UnitClosed
	}
	labels := make([]string, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, l.GetName())
	}
	return &model.WorkUnit{
		ID:        is.GetNumber(),
		Title:     is.GetTitle(),
		Body:      is.GetBody(),
		State:     state,
		Labels:    labels,
		CreatedAt: is.GetCreatedAt().Time,
		UpdatedAt: is.GetUpdatedAt().Time,
	}
}

func prToChangeSet(pr *github.PullRequest) *model.ChangeSet {
	return &model.ChangeSet{
		ID:        pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Branch:    pr.GetHead().GetRef(),
		Author:    pr.GetUser().GetLogin(),
		Merged:    pr.GetMerged(),
		Closed:    pr.GetState() == "closed",
		CreatedAt: pr.GetCreatedAt().Time,
	}
}
