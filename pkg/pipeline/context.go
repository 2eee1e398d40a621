package pipeline

import (
	"fmt"
	"strings"
)

// AggregateContext concatenates the response bodies of the given stages in
// declared order with a deterministic separator, so a downstream stage's
// input is byte-identical regardless of which upstream call finished
// first. Every listed stage must have Succeeded; otherwise aggregation is
// refused and the caller marks the dependent stage Skipped.
func AggregateContext(results map[string]*StageResult, stageIDs []string) (string, error) {
	parts := make([]string, 0, len(stageIDs))
	for _, id := range stageIDs {
		res, ok := results[id]
		if !ok || res.Status != StatusSucceeded {
			return "", fmt.Errorf("stage %s did not succeed", id)
		}
		parts = append(parts, fmt.Sprintf("===== %s =====\n\n%s", id, strings.TrimSpace(res.Result.Body)))
	}
	return strings.Join(parts, "\n\n"), nil
}

// stageBindings merges the run's base bindings with one aggregated context
// value per dependency variable. Dependency groups keep their declared
// order; duplicated variable names concatenate in declaration order.
func stageBindings(stage *Stage, base map[string]string, results map[string]*StageResult) (map[string]string, error) {
	bindings := make(map[string]string, len(base)+len(stage.Needs))
	for k, v := range base {
		bindings[k] = v
	}

	var order []string
	groups := make(map[string][]string)
	for _, dep := range stage.Needs {
		if _, ok := groups[dep.As]; !ok {
			order = append(order, dep.As)
		}
		groups[dep.As] = append(groups[dep.As], dep.Stage)
	}

	for _, name := range order {
		text, err := AggregateContext(results, groups[name])
		if err != nil {
			return nil, fmt.Errorf("aggregate %s for stage %s: %w", name, stage.ID, err)
		}
		bindings[name] = text
	}
	return bindings, nil
}
