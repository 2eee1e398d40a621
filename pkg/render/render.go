// Package render binds named variables into a template's role text.
package render

import (
	"fmt"
	"strings"

	"github.com/zen-systems/scribegate/pkg/template"
)

// UnboundVariableError reports a required placeholder with no binding.
// It signals a configuration error, never a model defect, and is not
// retryable.
type UnboundVariableError struct {
	Template string
	Variable string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("template %s: required variable %s is unbound", e.Template, e.Variable)
}

// Render substitutes every declared placeholder occurrence in the
// template's role text with its bound value and leaves all other text
// byte-identical. Placeholders use the form {{name}}. A required
// placeholder with no binding fails with UnboundVariableError; an optional
// one is replaced with the empty string. Bindings for undeclared names are
// ignored. Render never invokes the model.
func Render(tmpl *template.PromptTemplate, bindings map[string]string) (string, error) {
	out := tmpl.Role
	for _, in := range tmpl.Inputs {
		value, bound := bindings[in.Name]
		if !bound {
			if !in.Optional {
				return "", &UnboundVariableError{Template: tmpl.ID, Variable: in.Name}
			}
			value = ""
		}
		out = strings.ReplaceAll(out, placeholder(in.Name), value)
	}
	return out, nil
}

func placeholder(name string) string {
	return "{{" + name + "}}"
}
