package service

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

// Messages renders the bot's replies from a YAML catalog of html/template sources.
type Messages struct {
	templates map[string]*template.Template
}

// LoadMessages parses the built-in catalog and, when path is set, lays the
// entries of that YAML file over it.
func LoadMessages(path string) (*Messages, error) {
	m := &Messages{templates: make(map[string]*template.Template)}
	if err := m.merge(defaultMessages); err != nil {
		return nil, fmt.Errorf("failed to parse built-in messages: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read messages file: %w", err)
		}
		if err := m.merge(data); err != nil {
			return nil, fmt.Errorf("failed to parse messages file %s: %w", path, err)
		}
	}
	return m, nil
}

func (m *Messages) merge(data []byte) error {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, src := range raw {
		tmpl, err := template.New(name).Parse(src)
		if err != nil {
			return fmt.Errorf("message %s: %w", name, err)
		}
		m.templates[name] = tmpl
	}
	return nil
}

// Render executes the named message with data.
func (m *Messages) Render(name string, data any) (string, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown message %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render message %s: %w", name, err)
	}
	return buf.String(), nil
}

// Plain renders a message that takes no data. Unknown names render as themselves.
func (m *Messages) Plain(name string) string {
	text, err := m.Render(name, nil)
	if err != nil {
		return name
	}
	return text
}

func formatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', -1, 64)
}

type gameView struct {
	ID       string
	Name     string
	GiftCost string
	Count    int
}

type wardView struct {
	Name     string
	GiftWish string
}

type pairView struct {
	Giver string
	Ward  string
}

type summaryView struct {
	Pairs  []pairView
	Failed []string
}

type rosterView struct {
	Names []string
}
