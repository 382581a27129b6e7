// Package classify decides whether an engine reply is a question that must
// block for a human answer, as opposed to a status update the agent loop can
// poll past. Two implementations: a zero-dependency heuristic used by
// default, and an API-backed classifier for installs that want the extra
// accuracy.
package classify

import (
	"context"
	"strings"
)

// Classifier inspects an engine reply.
type Classifier interface {
	// NeedsUserInput reports whether the text asks something only a human
	// can answer.
	NeedsUserInput(ctx context.Context, text string) (bool, error)
	// ExtractQuestion returns the question being asked, or "" when no clear
	// question is found.
	ExtractQuestion(ctx context.Context, text string) (string, error)
}

// maxChars bounds how much reply text a classifier examines. Questions sit
// at the end of long replies, so the tail is kept.
const maxChars = 4000

func truncateTail(text string) string {
	if len(text) > maxChars {
		return "..." + text[len(text)-maxChars:]
	}
	return text
}

// Heuristic is the default Classifier. It looks for interrogative sentences
// near the end of the reply and ignores the polite-closing pattern
// ("let me know if ...") that agents emit constantly.
type Heuristic struct{}

var _ Classifier = Heuristic{}

// questionLeads are sentence openers that signal a real request for input
// even without a question mark.
var questionLeads = []string{
	"should i",
	"do you want",
	"would you like",
	"which ",
	"what ",
	"how should",
	"please tell me",
	"please provide",
	"please confirm",
	"i need to know",
	"can you clarify",
	"could you clarify",
}

// politeClosings are question-shaped sentences that do not block.
var politeClosings = []string{
	"let me know if",
	"feel free to",
	"don't hesitate to",
	"happy to help",
}

func (Heuristic) NeedsUserInput(ctx context.Context, text string) (bool, error) {
	return heuristicQuestion(text) != "", nil
}

func (Heuristic) ExtractQuestion(ctx context.Context, text string) (string, error) {
	return heuristicQuestion(text), nil
}

// heuristicQuestion returns the last question-like sentence in the text, or
// "" when the text reads as a status update.
func heuristicQuestion(text string) string {
	text = strings.TrimSpace(truncateTail(text))
	if text == "" {
		return ""
	}

	sentences := splitSentences(text)
	// Scan from the end; the actionable question is the last one.
	for i := len(sentences) - 1; i >= 0; i-- {
		s := strings.TrimSpace(sentences[i])
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)

		closing := false
		for _, p := range politeClosings {
			if strings.Contains(lower, p) {
				closing = true
				break
			}
		}
		if closing {
			continue
		}

		if strings.HasSuffix(s, "?") {
			return s
		}
		for _, lead := range questionLeads {
			if strings.HasPrefix(lower, lead) {
				return s
			}
		}
	}
	return ""
}

// splitSentences breaks text on sentence terminators, keeping the terminator
// attached to its sentence.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	for i, r := range text {
		switch r {
		case '.', '?', '!', '\n':
			if i >= start {
				out = append(out, text[start:i+1])
			}
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
