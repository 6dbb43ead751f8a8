// Package scenario replays scripted sequences of activity and notification
// operations against a Hub running on a fake clock.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/pulse/pkg/iojson"
)

// Kind names a step.
type Kind string

const (
	KindBegin   Kind = "begin"
	KindEnd     Kind = "end"
	KindOp      Kind = "op"
	KindSettle  Kind = "settle"
	KindPush    Kind = "push"
	KindDismiss Kind = "dismiss"
	KindClear   Kind = "clear"
	KindAdvance Kind = "advance"
	KindExpect  Kind = "expect"
)

// Scenario is a named list of steps.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`

	// Path is the file the scenario was loaded from, if any.
	Path string `yaml:"-"`
}

// Step is a single-key mapping in the scenario file, for example
// `push: {ref: save, category: error, text: Save failed}` or `advance: 4s`.
type Step struct {
	Kind Kind
	Line int

	// Times repeats begin and end. Defaults to 1.
	Times int
	// Ref names the target of dismiss and settle.
	Ref    string
	By     time.Duration
	Push   *PushStep
	Op     *OpStep
	Expect *Expectation
}

// PushStep adds a notification.
type PushStep struct {
	// Ref lets later steps refer to the pushed notification.
	Ref      string        `yaml:"ref"`
	Category string        `yaml:"category"`
	Text     string        `yaml:"text"`
	Sticky   *bool         `yaml:"sticky"`
	Expiry   time.Duration `yaml:"expiry"`
	Quick    bool          `yaml:"quick"`
}

// OpStep runs a wrapped operation. Without Ref the operation runs and
// settles within the step. With Ref it stays in flight until a settle step
// names it.
type OpStep struct {
	Ref   string `yaml:"ref"`
	Label string `yaml:"label"`
	Fail  bool   `yaml:"fail"`
	Skip  bool   `yaml:"skip"`
	// Cancel settles the operation by cancelling its context.
	Cancel bool `yaml:"cancel"`
	// Report pushes a sticky error with this text when the operation fails.
	Report string `yaml:"report"`
}

// Expectation asserts on hub state. Unset fields are not checked.
type Expectation struct {
	Count         *int   `yaml:"count"`
	Busy          *bool  `yaml:"busy"`
	Items         *int   `yaml:"items"`
	Category      string `yaml:"category"`
	CategoryCount *int   `yaml:"category_count"`
	StickyCount   *int   `yaml:"sticky_count"`
	Has           string `yaml:"has"`
	// MostRecent is a push ref, or "none" for an empty queue.
	MostRecent string `yaml:"most_recent"`
	// Present and Absent list push refs.
	Present []string `yaml:"present"`
	Absent  []string `yaml:"absent"`
}

// ErrEmpty is returned for a scenario without steps.
var ErrEmpty = errors.New("scenario has no steps")

// UnmarshalYAML decodes a single-key step mapping.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: step must be a mapping with exactly one key", node.Line)
	}

	key, val := node.Content[0], node.Content[1]
	s.Kind = Kind(key.Value)
	s.Line = key.Line

	var err error
	switch s.Kind {
	case KindBegin, KindEnd:
		s.Times = 1
		if val.Tag != "!!null" {
			err = val.Decode(&s.Times)
		}
	case KindOp:
		s.Op = &OpStep{}
		if val.Tag != "!!null" {
			err = decodeStrict(val, s.Op)
		}
	case KindSettle, KindDismiss:
		err = val.Decode(&s.Ref)
	case KindPush:
		s.Push = &PushStep{}
		err = decodeStrict(val, s.Push)
	case KindClear:
	case KindAdvance:
		err = val.Decode(&s.By)
	case KindExpect:
		s.Expect = &Expectation{}
		err = decodeStrict(val, s.Expect)
	default:
		return fmt.Errorf("line %d: unknown step %q", key.Line, key.Value)
	}
	if err != nil {
		return fmt.Errorf("line %d: %s: %w", key.Line, s.Kind, err)
	}

	return s.validate()
}

func (s *Step) validate() error {
	switch s.Kind {
	case KindBegin, KindEnd:
		if s.Times < 1 {
			return fmt.Errorf("line %d: %s must repeat at least once", s.Line, s.Kind)
		}
	case KindSettle, KindDismiss:
		if s.Ref == "" {
			return fmt.Errorf("line %d: %s requires a ref", s.Line, s.Kind)
		}
	case KindPush:
		if s.Push.Category == "" {
			return fmt.Errorf("line %d: push requires a category", s.Line)
		}
	case KindAdvance:
		if s.By <= 0 {
			return fmt.Errorf("line %d: advance requires a positive duration", s.Line)
		}
	case KindExpect:
		if s.Expect.Category != "" && s.Expect.CategoryCount == nil {
			return fmt.Errorf("line %d: expect category requires category_count", s.Line)
		}
		if s.Expect.empty() {
			return fmt.Errorf("line %d: expect sets no assertions", s.Line)
		}
	}
	return nil
}

// empty reports whether e checks nothing.
func (e *Expectation) empty() bool {
	return e.Count == nil && e.Busy == nil && e.Items == nil &&
		e.CategoryCount == nil && e.StickyCount == nil && e.Has == "" &&
		e.MostRecent == "" && len(e.Present) == 0 && len(e.Absent) == 0
}

// decodeStrict decodes node into out, rejecting keys out does not declare.
// Node.Decode ignores the decoder's KnownFields setting, so the node is
// re-encoded and decoded again through a strict decoder.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Parse decodes a scenario from r.
func Parse(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, ErrEmpty
	}
	return &sc, nil
}

// Load reads a scenario file. A path of "-" reads standard input.
func Load(path string) (*Scenario, error) {
	rc, err := iojson.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	sc, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.Path = path
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}
