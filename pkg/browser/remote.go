package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteConnector speaks to an automation agent sidecar over HTTP/JSON.
// The agent owns the actual browser (remote scraping browser, local
// headless instance, whatever the deployment provides) and exposes the DOM
// primitives as a small command protocol. This keeps CAPTCHA handling, IP
// rotation and fingerprinting entirely outside this codebase.
type RemoteConnector struct {
	baseURL string
	client  *http.Client
}

// NewRemoteConnector creates a connector for the agent at baseURL.
func NewRemoteConnector(baseURL string, client *http.Client) *RemoteConnector {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &RemoteConnector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// NewPage opens a fresh session on the agent.
func (c *RemoteConnector) NewPage(ctx context.Context) (Page, error) {
	var resp agentResponse
	if err := c.post(ctx, agentCommand{Op: "open"}, &resp); err != nil {
		return nil, err
	}
	if resp.Session == "" {
		return nil, fmt.Errorf("browser: agent returned no session id")
	}
	return &remotePage{conn: c, session: resp.Session}, nil
}

type agentCommand struct {
	Op        string `json:"op"`
	Session   string `json:"session,omitempty"`
	Locator   string `json:"locator,omitempty"`
	Value     string `json:"value,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

type agentResponse struct {
	OK      bool   `json:"ok"`
	Session string `json:"session,omitempty"`
	Text    string `json:"text,omitempty"`
	Count   int    `json:"count,omitempty"`
	Visible bool   `json:"visible,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (c *RemoteConnector) post(ctx context.Context, cmd agentCommand, out *agentResponse) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/command", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("browser: agent status %d for op %q", resp.StatusCode, cmd.Op)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("browser: decode agent response: %w", err)
	}
	if !out.OK {
		if out.Error == "not_visible" {
			return ErrNotVisible
		}
		return fmt.Errorf("browser: agent op %q failed: %s", cmd.Op, out.Error)
	}
	return nil
}

// remotePage is a Page bound to one agent session.
type remotePage struct {
	conn    *RemoteConnector
	session string
}

func (p *remotePage) do(ctx context.Context, cmd agentCommand) (agentResponse, error) {
	cmd.Session = p.session
	var resp agentResponse
	err := p.conn.post(ctx, cmd, &resp)
	return resp, err
}

func (p *remotePage) Navigate(ctx context.Context, url string) error {
	_, err := p.do(ctx, agentCommand{Op: "navigate", Value: url})
	return err
}

func (p *remotePage) Fill(ctx context.Context, locator, value string) error {
	_, err := p.do(ctx, agentCommand{Op: "fill", Locator: locator, Value: value})
	return err
}

func (p *remotePage) Click(ctx context.Context, locator string) error {
	_, err := p.do(ctx, agentCommand{Op: "click", Locator: locator})
	return err
}

func (p *remotePage) SelectOption(ctx context.Context, locator, label string) error {
	_, err := p.do(ctx, agentCommand{Op: "select", Locator: locator, Value: label})
	return err
}

func (p *remotePage) Press(ctx context.Context, key string) error {
	_, err := p.do(ctx, agentCommand{Op: "press", Value: key})
	return err
}

func (p *remotePage) Text(ctx context.Context, locator string) (string, error) {
	resp, err := p.do(ctx, agentCommand{Op: "text", Locator: locator})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *remotePage) WaitVisible(ctx context.Context, locator string, timeout time.Duration) error {
	_, err := p.do(ctx, agentCommand{
		Op:        "wait_visible",
		Locator:   locator,
		TimeoutMs: timeout.Milliseconds(),
	})
	return err
}

func (p *remotePage) Visible(ctx context.Context, locator string) bool {
	resp, err := p.do(ctx, agentCommand{Op: "visible", Locator: locator})
	return err == nil && resp.Visible
}

func (p *remotePage) Count(ctx context.Context, locator string) (int, error) {
	resp, err := p.do(ctx, agentCommand{Op: "count", Locator: locator})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (p *remotePage) Download(ctx context.Context, locator, dest string) error {
	_, err := p.do(ctx, agentCommand{Op: "download", Locator: locator, Value: dest})
	return err
}

func (p *remotePage) Close(ctx context.Context) error {
	_, err := p.do(ctx, agentCommand{Op: "close"})
	return err
}
