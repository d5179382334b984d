package llm

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/fewshot.yaml
var fewShotYAML []byte

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role
	Content string
}

// Exchange is one few-shot example: a news text and the expected answer.
type Exchange struct {
	User      string `yaml:"user"`
	Assistant string `yaml:"assistant"`
}

// Prompt is the fixed instruction plus few-shot examples sent before the
// caller's text.
type Prompt struct {
	Version  string     `yaml:"version"`
	System   string     `yaml:"system"`
	Examples []Exchange `yaml:"examples"`
}

// LoadPrompt parses the embedded few-shot prompt.
func LoadPrompt() (*Prompt, error) {
	return ParsePrompt(fewShotYAML)
}

// ParsePrompt parses a prompt document.
func ParsePrompt(data []byte) (*Prompt, error) {
	p := &Prompt{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prompt: %w", err)
	}
	if p.System == "" {
		return nil, fmt.Errorf("parse prompt: system instruction is empty")
	}
	for i, ex := range p.Examples {
		if ex.User == "" || ex.Assistant == "" {
			return nil, fmt.Errorf("parse prompt: example %d is incomplete", i)
		}
	}
	return p, nil
}

// Messages returns the full conversation for one news text.
func (p *Prompt) Messages(text string) []Message {
	msgs := make([]Message, 0, 2+2*len(p.Examples))
	msgs = append(msgs, Message{Role: RoleSystem, Content: p.System})
	for _, ex := range p.Examples {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: ex.User},
			Message{Role: RoleAssistant, Content: ex.Assistant},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: text})
}
