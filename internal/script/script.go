package script

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/narrator/internal/render"
)

// Script is a narrated walkthrough: an ordered list of steps played one
// after another.
type Script struct {
	// Name identifies the script in traces and logs.
	Name string `yaml:"name"`

	// Description is free text shown by validate.
	Description string `yaml:"description,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Step is one timeline entry. Exactly one of Say or Show may be set; a step
// with neither is a pause that may still carry a caption.
type Step struct {
	// Say speaks a line without showing anything.
	Say string `yaml:"say,omitempty"`

	// Show replaces the current visualization: bar, line or table.
	Show string `yaml:"show,omitempty"`

	// Title heads the visualization.
	Title string `yaml:"title,omitempty"`

	// Caption is printed under whatever is on screen.
	Caption string `yaml:"caption,omitempty"`

	// Wait pauses after the step.
	Wait time.Duration `yaml:"wait,omitempty"`

	// WaitComplete blocks a show step until every item has been revealed.
	WaitComplete bool `yaml:"wait_complete,omitempty"`

	// Options holds the visualization settings (x, y, audio, data, ...),
	// decoded by Visual.
	Options map[string]any `yaml:",inline"`
}

// StepKind classifies a step.
type StepKind string

const (
	KindSay   StepKind = "say"
	KindShow  StepKind = "show"
	KindPause StepKind = "pause"
)

// Kind reports what the step does.
func (s Step) Kind() StepKind {
	switch {
	case s.Show != "":
		return KindShow
	case s.Say != "":
		return KindSay
	default:
		return KindPause
	}
}

// Visual decodes the step's visualization options.
func (s Step) Visual() (Visual, error) {
	return DecodeVisual(s.Options)
}

// ValidationError reports a semantic problem with one step, or with the
// script as a whole when Step is -1.
type ValidationError struct {
	Step    int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("steps[%d].%s: %s", e.Step, e.Field, e.Message)
}

// Load reads, schema-checks and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data, path)
}

// Parse checks data against the schema, decodes it and validates it.
// filename is only used in error positions.
func Parse(data []byte, filename string) (*Script, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Step: -1, Field: "steps", Message: "script is empty"}
	}

	if err := ValidateSchema(data, filename); err != nil {
		return nil, err
	}

	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &s, nil
}

// Validate checks the rules the schema cannot express.
func (s *Script) Validate() error {
	if s.Name == "" {
		return &ValidationError{Step: -1, Field: "name", Message: "name is required"}
	}
	if len(s.Steps) == 0 {
		return &ValidationError{Step: -1, Field: "steps", Message: "steps list is required and must be non-empty"}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if step.Wait < 0 {
		return &ValidationError{Step: i, Field: "wait", Message: "must not be negative"}
	}

	switch step.Kind() {
	case KindShow:
		if step.Say != "" {
			return &ValidationError{Step: i, Field: "say", Message: "say and show are mutually exclusive"}
		}
		kind, err := render.ParseKind(step.Show)
		if err != nil {
			return &ValidationError{Step: i, Field: "show", Message: err.Error()}
		}
		v, err := step.Visual()
		if err != nil {
			return &ValidationError{Step: i, Field: "options", Message: err.Error()}
		}
		return validateVisual(i, kind, v)

	case KindSay:
		if err := onlyShowFields(i, step); err != nil {
			return err
		}

	case KindPause:
		if err := onlyShowFields(i, step); err != nil {
			return err
		}
		if step.Wait == 0 && step.Caption == "" {
			return &ValidationError{Step: i, Field: "say", Message: "step does nothing: set say, show, caption or wait"}
		}
	}
	return nil
}

// onlyShowFields rejects visualization settings on steps that show nothing.
func onlyShowFields(i int, step Step) error {
	if step.Title != "" {
		return &ValidationError{Step: i, Field: "title", Message: "only allowed on show steps"}
	}
	if step.WaitComplete {
		return &ValidationError{Step: i, Field: "wait_complete", Message: "only allowed on show steps"}
	}
	if len(step.Options) > 0 {
		keys := make([]string, 0, len(step.Options))
		for k := range step.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return &ValidationError{Step: i, Field: keys[0], Message: "only allowed on show steps"}
	}
	return nil
}

func validateVisual(i int, kind render.Kind, v Visual) error {
	if len(v.Data) == 0 {
		return &ValidationError{Step: i, Field: "data", Message: "show needs at least one record"}
	}
	if kind == render.KindTable {
		for c, col := range v.Columns {
			if col.Key == "" {
				return &ValidationError{Step: i, Field: fmt.Sprintf("columns[%d].key", c), Message: "key is required"}
			}
		}
		return nil
	}
	if len(v.Columns) > 0 {
		return &ValidationError{Step: i, Field: "columns", Message: "only allowed on table steps"}
	}
	return nil
}

// Duration sums every fixed wait in the script. Steps that wait for
// completion take longer.
func (s *Script) Duration() time.Duration {
	var d time.Duration
	for _, step := range s.Steps {
		d += step.Wait
	}
	return d
}
