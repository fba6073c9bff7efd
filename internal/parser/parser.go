// Package parser extracts generated files from free-form model output.
//
// The generative service is asked to emit each file as a delimited block:
//
//	<<path/to/file.ext>>
//	<content>
//	<<END_FILE>>
//
// Anything outside well-formed blocks (prose, markdown fences, partial
// markers) is ignored. The parser anchors only on the two literal markers so
// it stays robust against conversational noise around the blocks.
package parser

import (
	"regexp"
	"strings"

	"github.com/taskforge/pagesmith/internal/models"
)

// EndMarker terminates a file block. It is also used when serializing
// existing files back into a round-2 prompt so context and output share one
// grammar.
const EndMarker = "<<END_FILE>>"

// blockPattern matches one delimited file block. Content capture is
// non-greedy; markers match case-insensitively.
var blockPattern = regexp.MustCompile(`(?is)<<([^<>\n]+)>>[ \t]*\n(.*?)\n[ \t]*<<END_FILE>>`)

// Parse extracts all well-formed file blocks from text. Blocks whose path or
// content is empty after trimming are dropped. Text with no markers yields an
// empty slice, never an error: the absence of extractable files is an
// expected outcome, not a parser fault.
func Parse(text string) []models.GeneratedFile {
	matches := blockPattern.FindAllStringSubmatch(text, -1)

	files := make([]models.GeneratedFile, 0, len(matches))
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		content := strings.TrimSpace(m[2])
		if path == "" || content == "" {
			continue
		}
		if strings.EqualFold(path, "END_FILE") {
			// A stray end marker must not open a new block.
			continue
		}
		files = append(files, models.GeneratedFile{Path: path, Content: content})
	}

	return files
}

// Serialize renders files using the same delimiter grammar Parse consumes.
// Round-2 prompts embed existing repository contents this way so the model
// sees its required output format.
func Serialize(files []models.GeneratedFile) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("<<")
		b.WriteString(f.Path)
		b.WriteString(">>\n")
		b.WriteString(f.Content)
		b.WriteString("\n")
		b.WriteString(EndMarker)
		b.WriteString("\n\n")
	}
	return b.String()
}
