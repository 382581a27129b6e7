package agent

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// InputReader supplies human answers when an engine reply blocks on a
// question. A nil InputReader on the loop means the process is headless and
// questions are polled past instead of answered.
type InputReader interface {
	// ReadAnswer blocks until the human submits an answer to the question.
	ReadAnswer(question string) (string, error)
}

// TerminalInput reads multiline answers from an interactive terminal. Input
// ends at the first empty line, so answers can span paragraphs pasted from
// elsewhere.
type TerminalInput struct {
	In  io.Reader
	Out io.Writer
}

var _ InputReader = (*TerminalInput)(nil)

func (t *TerminalInput) ReadAnswer(question string) (string, error) {
	fmt.Fprintf(t.Out, "\n%s\n", question)
	fmt.Fprintln(t.Out, "(end your answer with an empty line)")
	fmt.Fprint(t.Out, "> ")

	var lines []string
	sc := bufio.NewScanner(t.In)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
		fmt.Fprint(t.Out, "> ")
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("agent: read input: %w", err)
	}
	answer := strings.TrimSpace(strings.Join(lines, "\n"))
	if answer == "" {
		return "", io.EOF
	}
	return answer, nil
}
