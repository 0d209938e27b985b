package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Send posts message to an ntfy topic endpoint. Extra headers such as Title,
// Tags or Priority are passed through unchanged.
func Send(ctx context.Context, client *http.Client, endpoint, message string, headers map[string]string) error {
	if endpoint == "" {
		return errors.New("ntfy endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Ntfy is a Notifier that pushes messages to an ntfy topic. Each message is
// sent on its own goroutine with a bounded timeout; failures are logged.
type Ntfy struct {
	Endpoint string
	Client   *http.Client
	Title    string
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (n *Ntfy) send(level Level, message string) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	headers := map[string]string{"Tags": ntfyTag(level)}
	if n.Title != "" {
		headers["Title"] = n.Title
	}
	if level == LevelError {
		headers["Priority"] = "high"
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := Send(ctx, n.Client, n.Endpoint, message, headers); err != nil {
			logger.Warn("ntfy push failed", "endpoint", n.Endpoint, "error", err)
		}
	}()
}

func ntfyTag(level Level) string {
	switch level {
	case LevelSuccess:
		return "white_check_mark"
	case LevelError:
		return "x"
	default:
		return "warning"
	}
}

func (n *Ntfy) Success(message string) { n.send(LevelSuccess, message) }
func (n *Ntfy) Error(message string)   { n.send(LevelError, message) }
func (n *Ntfy) Warning(message string) { n.send(LevelWarning, message) }
