package expansion

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	DefaultTemplate     = "moscow"
	DefaultSystemPrompt = "You output ONLY valid JSON. No explanation."
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template pairs a prompt with the example schema the model must follow.
type Template struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	// System is the system instruction. DefaultSystemPrompt is used when empty.
	System string `json:"system"`
	// Prompt is a text/template rendered with Title, Context, HasContext and Schema.
	Prompt string `json:"prompt" validate:"required"`
	// Schema is an example JSON document embedded in the prompt.
	Schema string `json:"schema" validate:"required,json"`
	// Required lists the top-level keys a reply must contain.
	Required []string `json:"required" validate:"dive,required"`

	prompt *template.Template
}

type promptParams struct {
	Title      string
	Context    string
	HasContext bool
	Schema     string
}

// Names lists the embedded templates.
func Names() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadTemplate returns the embedded template called name.
func LoadTemplate(name string) (*Template, error) {
	if !funk.ContainsString(Names(), name) {
		return nil, fmt.Errorf("unknown template %q, available: %s", name, strings.Join(Names(), ", "))
	}
	content, err := templateFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		return nil, errors.Wrapf(err, "reading template %s", name)
	}
	return ParseTemplate(content)
}

// LoadTemplateFile reads a template descriptor from disk.
func LoadTemplateFile(filename string) (*Template, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading template file %s", filename)
	}
	return ParseTemplate(content)
}

// Raw returns the descriptor of an embedded template as stored.
func Raw(name string) ([]byte, error) {
	if !funk.ContainsString(Names(), name) {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	return templateFS.ReadFile("templates/" + name + ".yaml")
}

// ParseTemplate decodes and validates a YAML template descriptor.
func ParseTemplate(data []byte) (*Template, error) {
	t := new(Template)
	if err := yaml.UnmarshalStrict(data, t); err != nil {
		return nil, errors.Wrap(err, "decoding template")
	}
	if t.System == "" {
		t.System = DefaultSystemPrompt
	}

	if err := validator.New().Struct(t); err != nil {
		return nil, errors.Wrapf(err, "invalid template %q", t.Name)
	}

	var schema map[string]json.RawMessage
	if err := json.Unmarshal([]byte(t.Schema), &schema); err != nil {
		return nil, errors.Wrapf(err, "template %q: schema must be a JSON object", t.Name)
	}
	for _, key := range t.Required {
		if _, ok := schema[key]; !ok {
			return nil, fmt.Errorf("template %q: required key %q is not in the schema", t.Name, key)
		}
	}

	prompt, err := template.New(t.Name).Option("missingkey=error").Parse(t.Prompt)
	if err != nil {
		return nil, errors.Wrapf(err, "template %q: parsing prompt", t.Name)
	}
	t.prompt = prompt

	return t, nil
}

// Render fills the prompt with the seed's title and optional context.
func (t *Template) Render(title string, context *string) (string, error) {
	params := promptParams{
		Title:  title,
		Schema: strings.TrimSpace(t.Schema),
	}
	if context != nil && strings.TrimSpace(*context) != "" {
		params.Context = *context
		params.HasContext = true
	}

	var buf bytes.Buffer
	if err := t.prompt.Execute(&buf, params); err != nil {
		return "", errors.Wrapf(err, "rendering template %s", t.Name)
	}
	return strings.TrimSpace(buf.String()), nil
}
