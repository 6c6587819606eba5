package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/herald/internal/pending"
)

// BoardConfig configures the community-board poster.
type BoardConfig struct {
	URL      string `json:"url"`                // post-creation endpoint
	Token    string `json:"-"`                  // from env HERALD_BOARD_TOKEN only
	Category string `json:"category,omitempty"` // board category/section slug
}

// BoardPoster delivers approved drafts to the community board via its
// JSON API.
type BoardPoster struct {
	cfg     BoardConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewBoardPoster creates a BoardPoster.
func NewBoardPoster(cfg BoardConfig) *BoardPoster {
	return &BoardPoster{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

type boardPostRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category string   `json:"category,omitempty"`
	Links    []string `json:"links,omitempty"`
}

type boardPostResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

func (p *BoardPoster) Send(ctx context.Context, item *pending.Item) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	title := item.Meta.Subject
	if title == "" {
		title = item.Meta.Topic
	}

	payload, err := json.Marshal(boardPostRequest{
		Title:    title,
		Body:     item.Message,
		Category: p.cfg.Category,
		Links:    item.Meta.Links,
	})
	if err != nil {
		return "", fmt.Errorf("marshal board post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build board request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("board post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("board post: status %d: %s", resp.StatusCode, string(msg))
	}

	var result boardPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Some boards answer with an empty body; the post still landed.
		return "", nil
	}
	if result.URL != "" {
		return result.URL, nil
	}
	return result.ID, nil
}
