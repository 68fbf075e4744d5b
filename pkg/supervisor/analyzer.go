// Package supervisor classifies recent exchanges for severity, sentiment and
// the need for a human operator.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

const (
	DefaultWindow    = 6
	analysisTokens   = 200
	analysisTemp     = 0.1
	FlagSelfHarm     = "self_harm"
	FlagHumanRequest = "human_requested"
)

const systemPrompt = `You are a safety supervisor monitoring a support call between a caller and an AI companion.
Classify the most recent exchange. Respond with ONLY a JSON object, no prose, in exactly this shape:
{"severity":"low|medium|high","sentiment":"<one word>","flags":["..."],"escalation_needed":true|false,"reason":"<one short sentence>"}
Use flags from: self_harm, violence, abuse, medical_emergency, dissatisfied, human_requested.
Set severity "high" and escalation_needed true when the caller is in danger, describes harming themselves or others, or explicitly asks for a human.`

// Analyzer runs the classification call.
type Analyzer struct {
	Window  int
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{Window: DefaultWindow, Timeout: 15 * time.Second, Logger: logger, Now: time.Now}
}

type verdict struct {
	Severity         string   `json:"severity"`
	Sentiment        string   `json:"sentiment"`
	Flags            []string `json:"flags"`
	EscalationNeeded bool     `json:"escalation_needed"`
	Reason           string   `json:"reason"`
}

// Analyze classifies the last Window turns. It never returns an error: any
// failure yields ok=false, which callers treat as no escalation signal.
func (a *Analyzer) Analyze(ctx context.Context, provider llm.Provider, turns []session.Turn) (session.SupervisorNote, bool) {
	if provider == nil || llm.IsUnconfigured(provider) || len(turns) == 0 {
		return session.SupervisorNote{}, false
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	raw, err := provider.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: transcript(a.window(turns))}},
		MaxTokens:    analysisTokens,
		Temperature:  analysisTemp,
	})
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonSupervisorRequest)
		a.Logger.Warn("supervisor_analysis_failed",
			slog.String("provider", provider.Name()),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return session.SupervisorNote{}, false
	}
	note, err := Parse(raw)
	if err != nil {
		a.Logger.Warn("supervisor_parse_failed",
			slog.String("provider", provider.Name()),
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return session.SupervisorNote{}, false
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	note.At = now()
	return note, true
}

func (a *Analyzer) window(turns []session.Turn) []session.Turn {
	n := a.Window
	if n <= 0 {
		n = DefaultWindow
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

func transcript(turns []session.Turn) string {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, t := range turns {
		label := "Caller"
		switch t.Role {
		case session.RoleAgent:
			label = "Agent"
		case session.RoleSystem:
			label = "System"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Text)
	}
	return b.String()
}

// Parse decodes and normalizes a model verdict.
func Parse(raw string) (session.SupervisorNote, error) {
	var v verdict
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &v); err != nil {
		return session.SupervisorNote{}, errorsx.Wrapf(err, errorsx.ReasonSupervisorParse, "decode verdict")
	}
	note := session.SupervisorNote{
		Severity:         normalizeSeverity(v.Severity),
		Sentiment:        strings.ToLower(strings.TrimSpace(v.Sentiment)),
		EscalationNeeded: v.EscalationNeeded,
		Reason:           strings.TrimSpace(v.Reason),
	}
	if note.Sentiment == "" {
		note.Sentiment = "neutral"
	}
	seen := make(map[string]bool, len(v.Flags))
	note.Flags = make([]string, 0, len(v.Flags))
	for _, f := range v.Flags {
		f = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(f)), "-", "_")
		f = strings.ReplaceAll(f, " ", "_")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		note.Flags = append(note.Flags, f)
	}
	return note, nil
}

func normalizeSeverity(s string) session.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical", "severe":
		return session.SeverityHigh
	case "medium", "moderate":
		return session.SeverityMedium
	default:
		return session.SeverityLow
	}
}

// cleanJSON strips code fences and surrounding prose from model output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
