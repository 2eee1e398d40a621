// Package repair builds regeneration prompts for responses that failed
// their output contract.
package repair

import (
	"fmt"
	"strings"

	"github.com/zen-systems/scribegate/pkg/validate"
)

// GenerateRepairPrompt creates a prompt that asks the model to regenerate
// a response that violated its contract. The original instructions are
// repeated in full so the retry stays self-contained.
func GenerateRepairPrompt(instructions, previous string, errs []*validate.Error) string {
	var sb strings.Builder

	sb.WriteString(instructions)
	sb.WriteString("\n\nYour previous response violated its output contract:\n")
	for _, e := range errs {
		sb.WriteString(fmt.Sprintf("- %s\n", e.Error()))
	}

	sb.WriteString("\nPrevious response:\n---\n")
	sb.WriteString(previous)
	sb.WriteString("\n---\n")
	sb.WriteString("\nRegenerate the complete response, fixing every violation listed above. Keep everything that was already correct.\n")

	return sb.String()
}
