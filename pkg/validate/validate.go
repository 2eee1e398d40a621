// Package validate parses raw model responses and checks them against a
// template's declared contract: the mandated header block, section
// completeness, markup leakage, and structural constraints. Validation is
// purely structural; it never judges whether the content is right.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zen-systems/scribegate/pkg/template"
)

// Kind classifies a contract violation. All four kinds are model defects
// and therefore retryable by policy.
type Kind string

const (
	HeaderFormatViolation     Kind = "header_format_violation"
	TagLeakage                Kind = "tag_leakage"
	MissingSection            Kind = "missing_section"
	FormatConstraintViolation Kind = "format_constraint_violation"
)

// Error describes one detected contract violation.
type Error struct {
	Kind    Kind
	Message string
	Section string // declared section label, for section-scoped violations
	Line    int    // 1-based line in the raw response, when one is implicated
}

func (e *Error) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s: %s (section %s)", e.Kind, e.Message, e.Section)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Message, e.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Section is one decomposed body section.
type Section struct {
	// Label is the declared section identifier (name or pattern).
	Label string
	// Heading is the heading line as it appeared in the response.
	Heading string
	Content string
}

// ParsedResult is the validated, section-decomposed representation of one
// raw model response. An empty Errors list marks it valid. Sections keep
// the order declared by the template, not the order found in text.
type ParsedResult struct {
	Header   string
	Body     string
	Sections []Section
	Errors   []*Error
}

// Valid reports whether the response satisfied its full contract.
func (r *ParsedResult) Valid() bool {
	return len(r.Errors) == 0
}

// Section returns the content of the first section with the given heading.
func (r *ParsedResult) Section(heading string) (string, bool) {
	for _, s := range r.Sections {
		if s.Heading == heading {
			return s.Content, true
		}
	}
	return "", false
}

var tagRe = regexp.MustCompile(`<[/!]?[a-zA-Z][^<>]*>`)

// htmlTableTags are tolerated when the template itself mandates an HTML
// table. Everything else still counts as leakage.
var htmlTableTags = map[string]struct{}{
	"table": {}, "thead": {}, "tbody": {}, "tr": {}, "th": {}, "td": {},
}

// Parse checks a raw response against the template's contract and
// decomposes it. Parsing is pure and idempotent: the same input always
// yields an identical result with the same error set.
func Parse(raw string, tmpl *template.PromptTemplate) *ParsedResult {
	result := &ParsedResult{}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	bodyStart := parseHeader(lines, tmpl, result)
	bodyLines := lines[bodyStart:]
	result.Body = strings.Join(bodyLines, "\n")

	checkTagLeakage(bodyLines, bodyStart, tmpl, result)
	parseSections(bodyLines, tmpl, result)
	checkTableFormat(bodyLines, tmpl, result)

	return result
}

// parseHeader verifies the header block and the single blank separator
// line, records the header text, and returns the body start index.
func parseHeader(lines []string, tmpl *template.PromptTemplate, result *ParsedResult) int {
	want := tmpl.Header.Lines
	if len(lines) < want {
		result.Errors = append(result.Errors, &Error{
			Kind:    HeaderFormatViolation,
			Message: fmt.Sprintf("expected %d header line(s), response has %d line(s)", want, len(lines)),
		})
		return len(lines)
	}

	words := 0
	for i := 0; i < want; i++ {
		if !strings.HasPrefix(lines[i], template.HeaderPrefix) {
			result.Errors = append(result.Errors, &Error{
				Kind:    HeaderFormatViolation,
				Message: fmt.Sprintf("header line must start with %q", template.HeaderPrefix),
				Line:    i + 1,
			})
		}
		words += len(strings.Fields(lines[i]))
	}
	if words > tmpl.Header.WordBudget {
		result.Errors = append(result.Errors, &Error{
			Kind:    HeaderFormatViolation,
			Message: fmt.Sprintf("header block has %d words, budget is %d", words, tmpl.Header.WordBudget),
		})
	}
	result.Header = strings.Join(lines[:want], "\n")

	if len(lines) == want {
		return want
	}
	if strings.TrimSpace(lines[want]) != "" {
		result.Errors = append(result.Errors, &Error{
			Kind:    HeaderFormatViolation,
			Message: "exactly one blank line must separate the header from the body",
			Line:    want + 1,
		})
		return want
	}
	if len(lines) > want+1 && strings.TrimSpace(lines[want+1]) == "" {
		result.Errors = append(result.Errors, &Error{
			Kind:    HeaderFormatViolation,
			Message: "exactly one blank line must separate the header from the body",
			Line:    want + 2,
		})
	}
	return want + 1
}

// checkTagLeakage scans the body for literal angle-bracket markup. Each
// distinct tag name is reported once, at its first occurrence.
func checkTagLeakage(bodyLines []string, offset int, tmpl *template.PromptTemplate, result *ParsedResult) {
	if !tmpl.Constraints.ForbidMarkup {
		return
	}
	tableAllowed := tmpl.Constraints.TableFormat == template.TableHTML

	seen := make(map[string]struct{})
	for i, line := range bodyLines {
		for _, match := range tagRe.FindAllString(line, -1) {
			name := tagName(match)
			if tableAllowed {
				if _, ok := htmlTableTags[name]; ok {
					continue
				}
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			result.Errors = append(result.Errors, &Error{
				Kind:    TagLeakage,
				Message: fmt.Sprintf("literal markup %s in body", match),
				Line:    offset + i + 1,
			})
		}
	}
}

func tagName(tag string) string {
	name := strings.TrimLeft(tag, "</!")
	name = strings.TrimRight(name, ">")
	if i := strings.IndexAny(name, " \t/"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// sectionMatch is a declared-section heading located in the body.
type sectionMatch struct {
	line    int // index into bodyLines
	section *template.OutputSection
	heading string
}

// parseSections locates every declared section heading and slices the body
// into section contents. Content runs until the next declared heading.
// Result order follows the declaration, with a pattern section expanding
// to one entry per match in text order.
func parseSections(bodyLines []string, tmpl *template.PromptTemplate, result *ParsedResult) {
	var matches []sectionMatch
	for i, line := range bodyLines {
		heading := normalizeHeading(line)
		if heading == "" {
			continue
		}
		for s := range tmpl.Sections {
			sec := &tmpl.Sections[s]
			if sec.Matches(heading) {
				matches = append(matches, sectionMatch{line: i, section: sec, heading: heading})
				break
			}
		}
	}

	content := func(m sectionMatch) string {
		end := len(bodyLines)
		for _, other := range matches {
			if other.line > m.line {
				end = other.line
				break
			}
		}
		return strings.TrimSpace(strings.Join(bodyLines[m.line+1:end], "\n"))
	}

	for s := range tmpl.Sections {
		sec := &tmpl.Sections[s]
		found := false
		for _, m := range matches {
			if m.section == sec {
				found = true
				result.Sections = append(result.Sections, Section{
					Label:   sec.Label(),
					Heading: m.heading,
					Content: content(m),
				})
				if !sec.Dynamic() {
					break
				}
			}
		}
		if !found && !sec.Optional {
			result.Errors = append(result.Errors, &Error{
				Kind:    MissingSection,
				Message: "required section not found",
				Section: sec.Label(),
			})
		}
	}
}

// normalizeHeading strips markdown heading markers so that declared
// section names match both bare and "## Heading" forms.
func normalizeHeading(line string) string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "#")
	return strings.TrimSpace(trimmed)
}

func checkTableFormat(bodyLines []string, tmpl *template.PromptTemplate, result *ParsedResult) {
	body := strings.Join(bodyLines, "\n")
	hasHTML := strings.Contains(strings.ToLower(body), "<table")
	hasMarkdown := hasMarkdownTable(bodyLines)

	switch tmpl.Constraints.TableFormat {
	case template.TableHTML:
		if hasMarkdown {
			result.Errors = append(result.Errors, &Error{
				Kind:    FormatConstraintViolation,
				Message: "table must be emitted as an HTML table, not Markdown",
			})
		}
		if !hasHTML {
			result.Errors = append(result.Errors, &Error{
				Kind:    FormatConstraintViolation,
				Message: "mandated HTML table is missing",
			})
		}
	case template.TableMarkdown:
		if hasHTML {
			result.Errors = append(result.Errors, &Error{
				Kind:    FormatConstraintViolation,
				Message: "table must be emitted as a Markdown table, not HTML",
			})
		}
		if !hasMarkdown {
			result.Errors = append(result.Errors, &Error{
				Kind:    FormatConstraintViolation,
				Message: "mandated Markdown table is missing",
			})
		}
	}
}

var markdownSeparatorRe = regexp.MustCompile(`^\|?[\s:|-]+\|[\s:|-]*$`)

func hasMarkdownTable(lines []string) bool {
	for i := 0; i+1 < len(lines); i++ {
		row := strings.TrimSpace(lines[i])
		sep := strings.TrimSpace(lines[i+1])
		if strings.HasPrefix(row, "|") && strings.Contains(sep, "-") && markdownSeparatorRe.MatchString(sep) {
			return true
		}
	}
	return false
}
