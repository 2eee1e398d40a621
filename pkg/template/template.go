package template

import (
	"fmt"
	"regexp"
	"strings"
)

// Phase identifies where in the analysis pipeline a template runs.
type Phase string

const (
	// PhaseA templates analyze the raw transcript directly.
	PhaseA Phase = "A"
	// PhaseB templates analyze aggregated Stage A output.
	PhaseB Phase = "B"
	// PhaseFinal templates compose the closing synthesis report.
	PhaseFinal Phase = "final"
)

// HeaderPrefix is the literal prefix every response header line must carry.
const HeaderPrefix = "Definition:"

// HeaderSpec declares the mandatory response header block.
// Lines is 1 or 3; WordBudget caps the total words across the block
// (20 for single-line headers, 100 for triple-line headers).
type HeaderSpec struct {
	Lines      int `yaml:"lines"`
	WordBudget int `yaml:"word_budget,omitempty"`
}

// InputVar declares a named placeholder the template expects.
type InputVar struct {
	Name     string `yaml:"name"`
	Optional bool   `yaml:"optional,omitempty"`
}

// OutputSection declares one section the response body must contain.
// Exactly one of Name or Pattern is set: Name matches a heading verbatim,
// Pattern matches dynamically named headings (one section per entity,
// e.g. per detected speaker).
type OutputSection struct {
	Name     string `yaml:"name,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`

	re *regexp.Regexp
}

// Dynamic reports whether the section is matched by pattern rather than
// by exact heading.
func (s *OutputSection) Dynamic() bool {
	return s.Pattern != ""
}

// Matches reports whether a heading line satisfies this section.
func (s *OutputSection) Matches(heading string) bool {
	if s.Dynamic() {
		return s.re.MatchString(heading)
	}
	return heading == s.Name
}

// Label returns the section identifier used in results and diagnostics.
func (s *OutputSection) Label() string {
	if s.Dynamic() {
		return s.Pattern
	}
	return s.Name
}

// TableFormat values accepted in a template's constraints block.
const (
	TableHTML     = "html"
	TableMarkdown = "markdown"
)

// Constraints holds template-level structural requirements on the body.
type Constraints struct {
	// ForbidMarkup rejects literal angle-bracket tags in the body.
	// Every catalog template must set it; a template that tolerates
	// markup leakage is refused at load.
	ForbidMarkup bool `yaml:"forbid_markup"`
	// TableFormat, when set, mandates how tables are serialized.
	TableFormat string `yaml:"table_format,omitempty"`
}

// PromptTemplate is one immutable entry of the catalog: the role text with
// its declared inputs and the contract its responses must satisfy.
type PromptTemplate struct {
	ID          string          `yaml:"id"`
	Phase       Phase           `yaml:"phase"`
	Tags        []string        `yaml:"tags,omitempty"`
	Role        string          `yaml:"role"`
	Header      HeaderSpec      `yaml:"response_header_required"`
	Inputs      []InputVar      `yaml:"inputs"`
	Sections    []OutputSection `yaml:"output_format"`
	Constraints Constraints     `yaml:"constraints"`
}

// Input returns the declared input with the given name, if any.
func (t *PromptTemplate) Input(name string) (InputVar, bool) {
	for _, in := range t.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputVar{}, false
}

// compile validates the template and prepares section patterns.
// Called once at catalog load; templates are read-only afterward.
func (t *PromptTemplate) compile() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	switch t.Phase {
	case PhaseA, PhaseB, PhaseFinal:
	default:
		return fmt.Errorf("template %s: invalid phase %q", t.ID, t.Phase)
	}
	if strings.TrimSpace(t.Role) == "" {
		return fmt.Errorf("template %s: role text is required", t.ID)
	}

	switch t.Header.Lines {
	case 1:
		if t.Header.WordBudget == 0 {
			t.Header.WordBudget = 20
		}
	case 3:
		if t.Header.WordBudget == 0 {
			t.Header.WordBudget = 100
		}
	default:
		return fmt.Errorf("template %s: header lines must be 1 or 3, got %d", t.ID, t.Header.Lines)
	}

	seenInputs := make(map[string]struct{})
	for _, in := range t.Inputs {
		if in.Name == "" {
			return fmt.Errorf("template %s: input name is required", t.ID)
		}
		if _, ok := seenInputs[in.Name]; ok {
			return fmt.Errorf("template %s: duplicate input %s", t.ID, in.Name)
		}
		seenInputs[in.Name] = struct{}{}
	}

	if len(t.Sections) == 0 {
		return fmt.Errorf("template %s: at least one output section is required", t.ID)
	}
	seenSections := make(map[string]struct{})
	for i := range t.Sections {
		sec := &t.Sections[i]
		if (sec.Name == "") == (sec.Pattern == "") {
			return fmt.Errorf("template %s: section must set exactly one of name or pattern", t.ID)
		}
		if _, ok := seenSections[sec.Label()]; ok {
			return fmt.Errorf("template %s: duplicate section %s", t.ID, sec.Label())
		}
		seenSections[sec.Label()] = struct{}{}
		if sec.Dynamic() {
			re, err := regexp.Compile(sec.Pattern)
			if err != nil {
				return fmt.Errorf("template %s: section pattern %q: %w", t.ID, sec.Pattern, err)
			}
			sec.re = re
		}
	}

	if !t.Constraints.ForbidMarkup {
		return fmt.Errorf("template %s: constraints must forbid markup leakage", t.ID)
	}
	switch t.Constraints.TableFormat {
	case "", TableHTML, TableMarkdown:
	default:
		return fmt.Errorf("template %s: unsupported table format %q", t.ID, t.Constraints.TableFormat)
	}

	return nil
}
