package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/internal/llm"
)

var _ llm.Generator = (*Client)(nil)
var _ llm.ModelVerifier = (*Client)(nil)

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Generate implements llm.Generator against POST /api/generate.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.generate.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"prompt_len", len(prompt),
		"has_system_prompt", system != "",
		"timeout_ms", c.cfg.Timeout.Milliseconds(),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := generateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: map[string]any{"temperature": c.cfg.Temperature},
	}
	raw, status, err := llm.SendJSON(ctx, c.http, http.MethodPost, c.endpoint("/api/generate"), body, nil, c.logger)
	if err != nil {
		err = c.classify(err, status, raw)
		c.logger.Error("llm.generate.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.Error("llm.generate.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: decode response: %v", llm.ErrAPI, err)
	}
	if gr.Error != "" {
		return "", c.classify(fmt.Errorf("%w: %s", llm.ErrAPI, gr.Error), status, raw)
	}
	if strings.TrimSpace(gr.Response) == "" {
		c.logger.Error("llm.generate.empty_response", "req_id", rid)
		return "", fmt.Errorf("%w: empty response", llm.ErrAPI)
	}

	c.logger.Info("llm.generate.ok",
		"req_id", rid,
		"model", c.cfg.Model,
		"response_len", len(gr.Response),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return gr.Response, nil
}

// VerifyModel checks /api/tags for the configured model.
func (c *Client) VerifyModel(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, status, err := llm.SendJSON(ctx, c.http, http.MethodGet, c.endpoint("/api/tags"), nil, nil, c.logger)
	if err != nil {
		return c.classify(err, status, raw)
	}
	var tr tagsResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return fmt.Errorf("%w: decode tags: %v", llm.ErrAPI, err)
	}
	names := make([]string, 0, len(tr.Models))
	for _, m := range tr.Models {
		names = append(names, m.Name)
		if sameModel(m.Name, c.cfg.Model) || sameModel(m.Model, c.cfg.Model) {
			c.logger.Info("llm.verify.ok", "model", c.cfg.Model)
			return nil
		}
	}
	c.logger.Warn("llm.verify.model_missing", "model", c.cfg.Model, "available", names)
	return fmt.Errorf("%w: model %q is not installed", llm.ErrModel, c.cfg.Model)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// classify refines an ErrAPI carrying an HTTP body into ErrModel when the
// service reports a missing model.
func (c *Client) classify(err error, status int, body []byte) error {
	if !errors.Is(err, llm.ErrAPI) {
		return err
	}
	msg := strings.ToLower(string(body) + " " + err.Error())
	if status == http.StatusNotFound || (strings.Contains(msg, "model") && strings.Contains(msg, "not found")) {
		return fmt.Errorf("%w: %q: %s", llm.ErrModel, c.cfg.Model, strings.TrimSpace(string(body)))
	}
	return err
}

func sameModel(have, want string) bool {
	if have == want {
		return true
	}
	return !strings.Contains(want, ":") && have == want+":latest"
}
