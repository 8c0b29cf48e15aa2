package agent

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed crew.yaml
var defaultCrew []byte

// Definition is the declarative form of a crew: its stages, the pipeline
// tasks and the conversational stage.
type Definition struct {
	Stages       []Stage          `yaml:"stages"`
	Tasks        []Task           `yaml:"tasks"`
	Conversation ConversationDef `yaml:"conversation"`
}

// ConversationDef selects the stage used for chat and, optionally, its task
// description template.
type ConversationDef struct {
	Stage       string `yaml:"stage"`
	Description string `yaml:"description,omitempty"`
}

// DefaultDefinition returns the embedded neurology crew.
func DefaultDefinition() (*Definition, error) {
	return ParseDefinition(defaultCrew)
}

// LoadDefinition reads a crew file; an empty path selects the embedded default.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crew definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a YAML crew definition. Unknown fields are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalidf("empty crew definition")
		}
		return nil, invalidf("decode crew definition: %v", err)
	}
	return &def, nil
}

// ApplyPrompts folds prompt overrides into the stage instructions.
func (d *Definition) ApplyPrompts(pm *PromptManager) error {
	if pm == nil {
		return nil
	}
	shared, err := pm.GetSharedPrompt()
	if err != nil {
		return err
	}
	for i := range d.Stages {
		s := &d.Stages[i]
		override, ok, err := pm.GetStagePrompt(s.ID)
		if err != nil {
			return err
		}
		if ok {
			s.Instructions = override
		}
		if shared != "" {
			s.Instructions = strings.TrimSpace(s.Instructions + "\n\n" + shared)
		}
	}
	return nil
}

// Pipeline builds the validated pipeline of the definition.
func (d *Definition) Pipeline() (*Pipeline, error) {
	return NewPipeline(d.Stages, d.Tasks)
}

// ConversationStage resolves the conversational stage and its description.
func (d *Definition) ConversationStage() (Stage, string, error) {
	if d.Conversation.Stage == "" {
		return Stage{}, "", invalidf("no conversation stage defined")
	}
	for _, s := range d.Stages {
		if s.ID == d.Conversation.Stage {
			return s, d.Conversation.Description, nil
		}
	}
	return Stage{}, "", invalidf("conversation: unknown stage %q", d.Conversation.Stage)
}
