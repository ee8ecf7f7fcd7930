package expansion

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/seednote/seed-worker/internal/client"
	"github.com/seednote/seed-worker/internal/failure"
	"github.com/seednote/seed-worker/internal/store/model"
	"go.uber.org/zap"
)

type Completer interface {
	Complete(ctx context.Context, req *client.ChatRequest) (string, error)
}

// Expander turns a seed into sprouts by asking the completion backend to fill
// the template's schema.
type Expander struct {
	completer   Completer
	modelName   string
	temperature *float64
	tmpl        *Template
}

func NewExpander(completer Completer, modelName string, temperature *float64, tmpl *Template) *Expander {
	return &Expander{
		completer:   completer,
		modelName:   modelName,
		temperature: temperature,
		tmpl:        tmpl,
	}
}

func (e *Expander) Expand(ctx context.Context, title string, seedContext *string) (model.Sprouts, error) {
	prompt, err := e.tmpl.Render(title, seedContext)
	if err != nil {
		return nil, err
	}

	content, err := e.completer.Complete(ctx, &client.ChatRequest{
		Model: e.modelName,
		Messages: []client.ChatMessage{
			{Role: client.RoleSystem, Content: e.tmpl.System},
			{Role: client.RoleUser, Content: prompt},
		},
		Stream:      false,
		Temperature: e.temperature,
	})
	if err != nil {
		return nil, err
	}

	return e.parse(content)
}

func (e *Expander) parse(content string) (model.Sprouts, error) {
	raw := []byte(stripCodeFence(content))

	if !json.Valid(raw) {
		var v any
		return nil, failure.NewErrParse("completion content", json.Unmarshal(raw, &v))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, failure.NewErrResponseShape("a JSON object in the completion content")
	}
	for _, key := range e.tmpl.Required {
		if _, ok := fields[key]; !ok {
			return nil, failure.NewErrResponseShape(key)
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, failure.NewErrParse("completion content", err)
	}

	zap.S().Named("expansion").Debugw("completion parsed", "template", e.tmpl.Name, "keys", len(fields))
	return model.Sprouts(buf.Bytes()), nil
}

// stripCodeFence removes a surrounding ``` or ```json fence some models add
// despite the instruction. The fence may sit on the same line as the JSON.
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	tag := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '+'
	})
	if tag > 0 && strings.ContainsRune(" \t\r\n{[", rune(s[tag])) {
		s = s[tag:]
	}
	return strings.TrimSpace(s)
}
