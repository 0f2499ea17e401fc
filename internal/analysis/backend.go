package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compare-engine/internal/cost"
	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/resilience"
	"github.com/sells-group/compare-engine/pkg/anthropic"
)

// Backend produces a remote comparison of two entities. The returned text is
// opaque to the caller.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, a, b *entity.Entity) (string, error)
}

const systemPrompt = `You compare two companies from a renewable-energy directory for a business audience.
Write a short markdown summary (at most five sentences) covering where they differ: regions, project experience, capacity, services and financing.
Only use the facts provided. Do not invent data.`

// Claude asks Anthropic's Messages API for the comparison.
type Claude struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
	Engine    *diff.Engine
	// MaxDiffs caps the differing fields listed in the prompt; 0 lists all.
	MaxDiffs int
	// Cost, when set, prices every successful call.
	Cost *cost.Tracker
}

// Name implements Backend.
func (c *Claude) Name() string { return "anthropic" }

// Analyze implements Backend.
func (c *Claude) Analyze(ctx context.Context, a, b *entity.Entity) (string, error) {
	engine := c.Engine
	if engine == nil {
		engine = diff.Default
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: Prompt(engine, a, b, c.MaxDiffs)}},
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.RetryableStatus(code) {
			return "", resilience.Transient(err, code)
		}
		return "", err
	}
	resp.Usage.Log(c.Model, "compare")
	if c.Cost != nil {
		c.Cost.Record(c.Model, "compare", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp.Text(), nil
}

// Spend reports the calls priced so far and their cost in USD.
func (c *Claude) Spend() (int, float64) { return c.Cost.Total() }

// Prompt renders both entities and at most maxDiffs of their differing fields
// as plain text.
func Prompt(engine *diff.Engine, a, b *entity.Entity, maxDiffs int) string {
	if engine == nil {
		engine = diff.Default
	}
	var sb strings.Builder
	for i, e := range []*entity.Entity{a, b} {
		fmt.Fprintf(&sb, "Company %c:\n", 'A'+i)
		for _, f := range e.Fields() {
			if engine.Exclude != nil && engine.Exclude.MatchString(f.Name) {
				continue
			}
			if v := diff.Format(f.Value); v != "" && v != "0" {
				fmt.Fprintf(&sb, "- %s: %s\n", diff.Humanize(f.Name), v)
			}
		}
		sb.WriteString("\n")
	}

	changes := engine.Diff(a, b).Limit(maxDiffs)
	if len(changes) == 0 {
		sb.WriteString("The two records have no differing fields.\n")
		return sb.String()
	}
	sb.WriteString("Differing fields:\n")
	for _, c := range changes {
		fmt.Fprintf(&sb, "- %s: %q vs %q\n", diff.Humanize(c.Field), c.Left, c.Right)
	}
	return sb.String()
}

// Endpoint posts both raw records to an HTTP analysis service. The service
// answers with {"analysis": "..."} or {"result": "..."}.
type Endpoint struct {
	URL    string
	Client *http.Client
}

// NewEndpoint returns an Endpoint with a bounded HTTP timeout.
func NewEndpoint(url string, timeout time.Duration) *Endpoint {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Endpoint{URL: url, Client: &http.Client{Timeout: timeout}}
}

type endpointRequest struct {
	DeveloperA any `json:"developerA"`
	DeveloperB any `json:"developerB"`
}

type endpointResponse struct {
	Analysis string `json:"analysis"`
	Result   string `json:"result"`
}

// Name implements Backend.
func (e *Endpoint) Name() string { return "endpoint" }

// Analyze implements Backend.
func (e *Endpoint) Analyze(ctx context.Context, a, b *entity.Entity) (string, error) {
	body, err := json.Marshal(endpointRequest{DeveloperA: payload(a), DeveloperB: payload(b)})
	if err != nil {
		return "", eris.Wrap(err, "analysis: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "analysis: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "analysis: post %s", e.URL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := eris.Errorf("analysis: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resilience.RetryableStatus(resp.StatusCode) {
			return "", resilience.Transient(err, resp.StatusCode)
		}
		return "", err
	}

	var out endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", eris.Wrap(err, "analysis: decode response")
	}
	if out.Analysis != "" {
		return out.Analysis, nil
	}
	return out.Result, nil
}

// payload sends the originating record when there is one so the service sees
// the source columns.
func payload(e *entity.Entity) any {
	if e.Raw != nil {
		return e.Raw
	}
	return e
}
