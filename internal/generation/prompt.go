package generation

import (
	"fmt"
	"strings"

	"github.com/taskforge/pagesmith/internal/models"
	"github.com/taskforge/pagesmith/internal/parser"
)

const bootstrapInstruction = "You are a strict, highly efficient code generation tool. " +
	"Generate ONLY the requested files, from scratch. " +
	"DO NOT add any conversational text, explanations, or additional markdown outside the required file format. " +
	"Use the specified file format: <<FILENAME.ext>>[newline]<content>[newline]<<END_FILE>>"

const updateInstruction = "You are a strict, highly efficient code maintenance tool. " +
	"Update the existing files in place to satisfy the new requirements. " +
	"Emit ONLY changed or new files; DO NOT re-emit unchanged files. " +
	"DO NOT add any conversational text or explanations outside the required file format. " +
	"Use the specified file format: <<FILENAME.ext>>[newline]<content>[newline]<<END_FILE>>"

const outputFormatInstruction = `
Output all generated files using this format ONLY, starting immediately after this instruction:

<<FILENAME.ext>>
// File content goes here
<<END_FILE>>

Example:

<<README.md>>
# Project Title

Setup instructions...
<<END_FILE>>

<<index.html>>
<!DOCTYPE html>...
<<END_FILE>>
`

// systemInstruction selects the per-round system message: round 1 creates
// from scratch, later rounds update in place.
func systemInstruction(round int) string {
	if round >= 2 {
		return updateInstruction
	}
	return bootstrapInstruction
}

// userPrompt assembles the task brief, acceptance checks, attachment
// references and, for round 2, the existing repository contents serialized in
// the same delimiter grammar the parser consumes.
func userPrompt(task *models.Task, existing []models.GeneratedFile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", task.Name)
	fmt.Fprintf(&b, "Brief: %s\n", task.Brief)
	b.WriteString("Generate a complete, high-quality web app. All code must be well-documented.\n")
	if len(task.Checks) > 0 {
		b.WriteString("Checks:\n")
		for _, check := range task.Checks {
			fmt.Fprintf(&b, "- %s\n", check)
		}
	}
	b.WriteString("Files required: README.md, plus necessary HTML, CSS, JS.\n")

	if len(task.Attachments) > 0 {
		b.WriteString("\n--- ATTACHMENTS (File Name: URI) ---\n")
		for _, a := range task.Attachments {
			fmt.Fprintf(&b, "%s: %s\n", a.Name, a.URL)
		}
		b.WriteString("--- END ATTACHMENTS ---\n")
	}

	if task.Round >= 2 && len(existing) > 0 {
		b.WriteString("\n--- EXISTING FILES ---\n")
		b.WriteString(parser.Serialize(existing))
		b.WriteString("--- END EXISTING FILES ---\n")
	}

	b.WriteString(outputFormatInstruction)

	return b.String()
}
