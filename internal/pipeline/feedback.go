package pipeline

import (
	"strings"

	"github.com/temirov/structgen/internal/schema"
)

const (
	refineHeader      = "REFINE:"
	feedbackPreamble  = "Your previous responses were rejected. Every error so far, oldest first:"
	feedbackCorrected = "Respond again with a single JSON object that fixes all of the errors above and follows this schema:"
)

// formatRefine renders the feedback suffix for the next attempt. It lists every record in
// history, so each suffix contains the previous one's records plus the newest.
func formatRefine(history []ErrorRecord, descriptor *schema.Descriptor) string {
	if len(history) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(refineHeader)
	builder.WriteString("\n")
	builder.WriteString(feedbackPreamble)
	builder.WriteString("\n")
	for _, record := range history {
		builder.WriteString("- ")
		builder.WriteString(record.String())
		builder.WriteString("\n")
	}
	builder.WriteString(feedbackCorrected)
	if descriptor != nil {
		if guidance := descriptor.Guidance(); guidance != "" {
			builder.WriteString("\n")
			builder.WriteString(guidance)
		}
	}
	return builder.String()
}

func appendRefine(original, refine string) string {
	trimmedOriginal := strings.TrimRight(original, "\n")
	if trimmedOriginal == "" {
		return refine
	}
	return trimmedOriginal + "\n\n" + refine
}
