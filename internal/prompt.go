package internal

import (
	"fmt"
	"strings"
)

// SystemPrompt restricts the model to the supplied sources.
const SystemPrompt = `You are an AI assistant designed to answer questions using ONLY the provided source material.

GUARDRAILS:
- Do NOT invent facts.
- Do NOT rely on general knowledge outside the provided context.
- When you use information from a source, cite the source filename in brackets, e.g. [handbook.md].
- If the answer cannot be found in the sources, reply with a line starting with "REFUSAL:" followed by
  "The provided documents do not contain sufficient information to answer this question."
- Maintain a neutral, professional tone suitable for enterprise and government use.
`

// UserPromptTemplate has two slots, filled in order by the retrieved
// context and the question.
const UserPromptTemplate = `CONTEXT:
%s

QUESTION:
%s

INSTRUCTIONS:
- Base your answer strictly on the CONTEXT above.
- If multiple sources are relevant, synthesize them clearly.
- If the context is insufficient, explicitly state that limitation.
- Do not speculate or provide personal opinions.

ANSWER:
`

const (
	contextSeparator = "\n---\n"
	ellipsis         = "..."
)

// Excerpt is one retrieved passage handed to the model.
type Excerpt struct {
	Source string
	Text   string
}

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

// ExcerptsFromResults keeps source and text of each result, in order. A
// record with blank text is filled from readSource(source) when readSource
// is non-nil; a failed read keeps the record text.
func ExcerptsFromResults(results []RetrievalResult, readSource func(string) (string, error)) []Excerpt {
	excerpts := make([]Excerpt, len(results))
	for i, r := range results {
		text := r.Chunk.Text
		if strings.TrimSpace(text) == "" && readSource != nil && r.Chunk.Source != "" {
			if s, err := readSource(r.Chunk.Source); err == nil {
				text = s
			}
		}
		excerpts[i] = Excerpt{Source: r.Chunk.Source, Text: text}
	}
	return excerpts
}

// Truncate cuts s to at most maxChars characters, marking the cut with "...".
// A maxChars of zero or less disables truncation.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	keep := max(maxChars-len(ellipsis), 0)
	return string(runes[:keep]) + ellipsis
}

// FormatContext renders excerpts as "Source: name\ntext" blocks separated
// by "---" lines.
func FormatContext(excerpts []Excerpt, maxChars int) string {
	blocks := make([]string, len(excerpts))
	for i, e := range excerpts {
		src := e.Source
		if src == "" {
			src = "<unknown>"
		}
		blocks[i] = "Source: " + src + "\n" + Truncate(e.Text, maxChars)
	}
	return strings.Join(blocks, contextSeparator)
}

func BuildUserPrompt(context, question string) string {
	return fmt.Sprintf(UserPromptTemplate, context, question)
}

// AssemblePrompt builds the message pair for a grounded answer.
func AssemblePrompt(question string, excerpts []Excerpt, maxChars int) Prompt {
	return Prompt{
		System: SystemPrompt,
		User:   BuildUserPrompt(FormatContext(excerpts, maxChars), question),
	}
}
