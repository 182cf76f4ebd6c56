package ntfy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Event names accepted in the events filter.
const (
	EventPairing = "pairing"
	EventReply   = "reply"
)

const maxBody = 280

// ErrThrottled means a notification was dropped by the rate limiter.
var ErrThrottled = errors.New("ntfy: throttled")

// Client sends push notifications via ntfy.sh (or a self-hosted ntfy server).
type Client struct {
	url     string // full URL: https://ntfy.sh/{topic}
	token   string // optional bearer token for reserved topics
	events  map[string]bool
	limiter *rate.Limiter
	http    *http.Client
	log     *slog.Logger
}

// New creates a client. Topic can be a bare topic name (expanded against
// server, default https://ntfy.sh) or a full URL. Events is a
// comma-separated list of event types to send (e.g. "pairing,reply").
func New(server, topic, token, events string) *Client {
	url := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		if server == "" {
			server = "https://ntfy.sh"
		}
		url = strings.TrimRight(server, "/") + "/" + topic
	}
	evMap := make(map[string]bool)
	for _, e := range strings.Split(events, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			evMap[e] = true
		}
	}
	return &Client{
		url:    url,
		token:  token,
		events: evMap,
		// a chatty agent finishes many short runs; one push per 10s is plenty
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 3),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     slog.Default().With("component", "ntfy"),
	}
}

// Enabled reports whether event is in the filter.
func (c *Client) Enabled(event string) bool { return c.events[event] }

// SendPairingRequired tells the user to approve this device on the gateway.
func (c *Client) SendPairingRequired(ctx context.Context, agent, code string) error {
	if !c.events[EventPairing] {
		return nil
	}
	body := "approve this device on the gateway"
	if code != "" {
		body = fmt.Sprintf("approve pairing request %s on the gateway", code)
	}
	return c.post(ctx, fmt.Sprintf("%s: pairing required", displayName(agent)), body, "high", "key", true)
}

// SendReply forwards a finished assistant reply, truncated to a push-sized body.
func (c *Client) SendReply(ctx context.Context, agent, text string) error {
	if !c.events[EventReply] || strings.TrimSpace(text) == "" {
		return nil
	}
	return c.post(ctx, fmt.Sprintf("%s replied", displayName(agent)), truncate(text, maxBody), "default", "speech_balloon", false)
}

// SendTest sends a test notification and returns any error. It bypasses
// the event filter and the limiter.
func (c *Client) SendTest(ctx context.Context) error {
	return c.post(ctx, "clawline test", "Push notifications are working!", "default", "test_tube", true)
}

func (c *Client) post(ctx context.Context, title, body, priority, tags string, force bool) error {
	if !force && !c.limiter.Allow() {
		c.log.Debug("dropping notification", "title", title)
		return ErrThrottled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("post failed", "err", err)
		return fmt.Errorf("ntfy: post: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		err = fmt.Errorf("ntfy: HTTP %d", resp.StatusCode)
		c.log.Warn("post rejected", "status", resp.StatusCode)
		return err
	}
	return nil
}

func displayName(agent string) string {
	if agent == "" {
		return "Agent"
	}
	return agent
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

// GenerateTopic returns an unguessable topic name; ntfy topics are public
// to anyone who knows them.
func GenerateTopic() string {
	return "clawline-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
