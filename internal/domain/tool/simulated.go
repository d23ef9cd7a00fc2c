package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var ErrSimulatedExecutionFailed = errors.New("simulated tool execution failed")

// Latency bounds the fake work time of a simulator. Tests use {0, 0}.
type Latency struct {
	Min time.Duration
	Max time.Duration
}

// DefaultLatency approximates the feel of a real execution backend.
var DefaultLatency = Latency{Min: 150 * time.Millisecond, Max: 600 * time.Millisecond}

// sleep blocks for a random duration within the bounds, honoring ctx.
func (l Latency) sleep(ctx context.Context) error {
	d := l.Min
	if l.Max > l.Min {
		d += time.Duration(rand.Int63n(int64(l.Max - l.Min)))
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printPatterns extract string literals from print-like statements so the
// simulated stdout resembles what the snippet would actually print.
var printPatterns = []*regexp.Regexp{
	regexp.MustCompile(`print\(\s*["']([^"']*)["']\s*\)`),            // python
	regexp.MustCompile(`fmt\.Println\(\s*"([^"]*)"\s*\)`),            // go
	regexp.MustCompile(`console\.log\(\s*["'` + "`" + `]([^"'` + "`" + `]*)["'` + "`" + `]\s*\)`), // js
	regexp.MustCompile(`println!\(\s*"([^"]*)"\s*\)`),                // rust
	regexp.MustCompile(`System\.out\.println\(\s*"([^"]*)"\s*\)`),    // java
}

// CodeExecutionSimulator pretends to run a code snippet. It never executes
// anything: output is derived from the snippet text.
type CodeExecutionSimulator struct {
	latency Latency
}

func NewCodeExecutionSimulator(latency Latency) Executor {
	return &CodeExecutionSimulator{latency: latency}
}

type codeExecutionParams struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (e *CodeExecutionSimulator) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in codeExecutionParams
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("%w: invalid params", ErrSimulatedExecutionFailed)
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, fmt.Errorf("%w: code is required", ErrSimulatedExecutionFailed)
	}

	started := time.Now()
	if err := e.latency.sleep(ctx); err != nil {
		return nil, err
	}

	var lines []string
	for _, pattern := range printPatterns {
		for _, match := range pattern.FindAllStringSubmatch(in.Code, -1) {
			lines = append(lines, match[1])
		}
	}
	if len(lines) == 0 {
		lines = []string{"[simulated] execution completed with no output"}
	}

	out, _ := json.Marshal(map[string]any{
		"simulated":   true,
		"language":    in.Language,
		"stdout":      strings.Join(lines, "\n"),
		"exit_code":   0,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return out, nil
}

var imageSizePattern = regexp.MustCompile(`^\d{2,4}x\d{2,4}$`)

// ImageGenerationSimulator returns a placeholder image URL instead of
// calling an image model.
type ImageGenerationSimulator struct {
	latency Latency
}

func NewImageGenerationSimulator(latency Latency) Executor {
	return &ImageGenerationSimulator{latency: latency}
}

type imageGenerationParams struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

func (e *ImageGenerationSimulator) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in imageGenerationParams
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("%w: invalid params", ErrSimulatedExecutionFailed)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrSimulatedExecutionFailed)
	}
	if in.Size == "" {
		in.Size = "512x512"
	}
	if !imageSizePattern.MatchString(in.Size) {
		return nil, fmt.Errorf("%w: size must look like 512x512", ErrSimulatedExecutionFailed)
	}

	if err := e.latency.sleep(ctx); err != nil {
		return nil, err
	}

	// Same prompt, same seed: the placeholder URL is stable across calls.
	h := fnv.New32a()
	h.Write([]byte(in.Prompt)) //nolint:errcheck
	placeholder := fmt.Sprintf("https://placehold.co/%s?seed=%d&text=%s",
		in.Size, h.Sum32(), url.QueryEscape(truncate(in.Prompt, 40)))

	out, _ := json.Marshal(map[string]any{
		"simulated": true,
		"prompt":    in.Prompt,
		"size":      in.Size,
		"url":       placeholder,
	})
	return out, nil
}

// snippetTemplates maps keywords in the description to canned markup.
// Checked in order; the first match wins.
var snippetTemplates = []struct {
	pattern   *regexp.Regexp
	component string
	html      string
}{
	{regexp.MustCompile(`(?i)\bbutton\b`), "button",
		`<button class="btn btn-primary">Click me</button>`},
	{regexp.MustCompile(`(?i)\b(form|input|login|signup)\b`), "form",
		`<form><label>Email<input type="email" name="email"></label><button type="submit">Submit</button></form>`},
	{regexp.MustCompile(`(?i)\btable\b`), "table",
		`<table><thead><tr><th>Name</th><th>Value</th></tr></thead><tbody><tr><td>Sample</td><td>42</td></tr></tbody></table>`},
	{regexp.MustCompile(`(?i)\b(card|tile|panel)\b`), "card",
		`<div class="card"><h3 class="card-title">Title</h3><p class="card-body">Card content goes here.</p></div>`},
	{regexp.MustCompile(`(?i)\b(nav|navbar|menu|header)\b`), "navbar",
		`<nav class="navbar"><a href="#">Home</a><a href="#">About</a><a href="#">Contact</a></nav>`},
}

// UISnippetSimulator matches the description against known component
// keywords and returns canned markup for the closest one.
type UISnippetSimulator struct {
	latency Latency
}

func NewUISnippetSimulator(latency Latency) Executor {
	return &UISnippetSimulator{latency: latency}
}

type uiSnippetParams struct {
	Description string `json:"description"`
}

func (e *UISnippetSimulator) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in uiSnippetParams
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("%w: invalid params", ErrSimulatedExecutionFailed)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrSimulatedExecutionFailed)
	}

	if err := e.latency.sleep(ctx); err != nil {
		return nil, err
	}

	component := "container"
	html := fmt.Sprintf(`<div class="container"><!-- %s --></div>`, truncate(in.Description, 80))
	for _, tmpl := range snippetTemplates {
		if tmpl.pattern.MatchString(in.Description) {
			component = tmpl.component
			html = tmpl.html
			break
		}
	}

	out, _ := json.Marshal(map[string]any{
		"simulated": true,
		"component": component,
		"html":      html,
	})
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
