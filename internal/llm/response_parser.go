package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/briefing/pkg/types"
)

// ErrNoSelections is returned when a submit payload holds no usable entry.
var ErrNoSelections = errors.New("no valid selections")

// ToolCall is one structured call parsed from model output.
type ToolCall struct {
	Tool string `json:"tool"`
	Args Args   `json:"args"`
}

// rawToolCall accepts the field spellings models actually produce.
type rawToolCall struct {
	Tool       string          `json:"tool"`
	Name       string          `json:"name"`
	ToolName   string          `json:"tool_name"`
	ToolName2  string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

// ParseToolCall finds exactly one {tool, args} object in model output.
//
// Fallback order: the whole trimmed text, then the body of the first fenced
// block, then every balanced {...} object in the text from left to right.
// The first candidate that decodes with a non-empty tool name wins.
func ParseToolCall(text string) (*ToolCall, bool) {
	for _, candidate := range toolCallCandidates(text) {
		if call, ok := decodeToolCall(candidate); ok {
			return call, true
		}
	}
	return nil, false
}

func toolCallCandidates(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	candidates := []string{trimmed}
	if fenced, ok := fencedBlock(trimmed); ok {
		candidates = append(candidates, fenced)
	}
	candidates = append(candidates, jsonObjects(trimmed)...)
	return candidates
}

func decodeToolCall(s string) (*ToolCall, bool) {
	var raw rawToolCall
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	name := firstNonEmpty(raw.Tool, raw.ToolName, raw.ToolName2, raw.Name)
	if name == "" {
		return nil, false
	}

	call := &ToolCall{Tool: strings.TrimSpace(name), Args: Args{}}
	for _, body := range []json.RawMessage{raw.Args, raw.Arguments, raw.Parameters} {
		if len(body) == 0 || string(body) == "null" {
			continue
		}
		args, ok := decodeArgs(body)
		if ok {
			call.Args = args
			break
		}
	}
	return call, true
}

// decodeArgs accepts an object, or a string containing an object (some
// providers double-encode arguments).
func decodeArgs(body json.RawMessage) (Args, bool) {
	var args Args
	if err := json.Unmarshal(body, &args); err == nil {
		return args, true
	}
	var encoded string
	if err := json.Unmarshal(body, &encoded); err == nil {
		if err := json.Unmarshal([]byte(extractJSON(encoded)), &args); err == nil {
			return args, true
		}
	}
	return nil, false
}

// ParseSelections converts submit_selections args into selections.
// selections may be an array or a JSON string holding one. Entries without
// an integer signal_index are dropped; confidence is clamped to [0,1] and
// unknown reasons become "other". Index range is not checked here.
func ParseSelections(args Args) ([]types.SignalSelection, error) {
	v, ok := args.Lookup("selections")
	if !ok {
		return nil, fmt.Errorf("%w: selections missing", ErrNoSelections)
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		if err := json.Unmarshal([]byte(extractJSONArray(t)), &items); err != nil {
			return nil, fmt.Errorf("%w: selections string is not a JSON array: %v", ErrNoSelections, err)
		}
	default:
		return nil, fmt.Errorf("%w: selections has unexpected type %T", ErrNoSelections, v)
	}

	out := make([]types.SignalSelection, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := Args(m)
		idx, ok := entry.Int("signal_index")
		if !ok {
			if idx, ok = entry.Int("index"); !ok {
				continue
			}
		}

		reason := types.ParseSelectionReason(entry.String("reason"))
		label := entry.String("reason_label")
		if label == "" {
			label = reason.Label()
		}

		confidence, ok := entry.Float("confidence")
		if !ok {
			confidence = 0.5
		}
		confidence = clamp01(confidence)

		out = append(out, types.SignalSelection{
			SignalIndex:       idx,
			Reason:            reason,
			ReasonLabel:       label,
			Confidence:        confidence,
			NoveltyAssessment: entry.String("novelty_assessment"),
			Attribution:       entry.String("attribution"),
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d entries, none usable", ErrNoSelections, len(items))
	}
	return out, nil
}

// PruneRemoval is one entity the pruning judge wants removed.
type PruneRemoval struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ParsePruneVerdict parses {"remove":[{name,type,reason}]}. A bare array of
// removals is also accepted. Entries without a name are skipped.
func ParsePruneVerdict(text string) ([]PruneRemoval, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, "```json", ""), "```", ""))

	var removals []PruneRemoval
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(extractJSONArray(trimmed)), &removals); err != nil {
			return nil, fmt.Errorf("failed to parse prune verdict: %w", err)
		}
	} else {
		var verdict struct {
			Remove []PruneRemoval `json:"remove"`
		}
		if err := json.Unmarshal([]byte(extractJSON(trimmed)), &verdict); err != nil {
			return nil, fmt.Errorf("failed to parse prune verdict: %w", err)
		}
		removals = verdict.Remove
	}

	out := removals[:0]
	for _, r := range removals {
		r.Name = strings.TrimSpace(r.Name)
		r.Type = strings.ToLower(strings.TrimSpace(r.Type))
		if r.Name == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}
	if end := matchClose(text, start, '{', '}'); end > 0 {
		return text[start : end+1]
	}
	return text // No complete JSON found, return as-is
}

// extractJSONArray is extractJSON for a top-level array.
func extractJSONArray(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "[")
	if start == -1 {
		return text
	}
	if end := matchClose(text, start, '[', ']'); end > 0 {
		return text[start : end+1]
	}
	return text
}

// jsonObjects returns every top-level balanced {...} span in text.
func jsonObjects(text string) []string {
	var out []string
	for i := 0; i < len(text); {
		start := strings.IndexByte(text[i:], '{')
		if start == -1 {
			break
		}
		start += i
		end := matchClose(text, start, '{', '}')
		if end < 0 {
			break
		}
		out = append(out, text[start:end+1])
		i = end + 1
	}
	return out
}

// matchClose returns the index of the bracket closing the one at start,
// ignoring brackets inside strings, or -1.
func matchClose(text string, start int, open, close byte) int {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// fencedBlock returns the body of the first ``` fenced block.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start == -1 {
		return "", false
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 && !strings.ContainsAny(rest[:nl], "{[") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
