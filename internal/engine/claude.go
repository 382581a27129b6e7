package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// ClaudeRunner runs turns by invoking the claude CLI in headless print mode
// and reading its stream-json output.
type ClaudeRunner struct {
	// Bin is the claude binary; defaults to "claude".
	Bin string
	// Logger receives per-turn diagnostics; defaults to slog.Default().
	Logger *slog.Logger
}

var _ Runner = (*ClaudeRunner)(nil)

func (c *ClaudeRunner) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return "claude"
}

func (c *ClaudeRunner) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run executes one engine turn. The process inherits the parent environment;
// killing the context kills the process.
func (c *ClaudeRunner) Run(ctx context.Context, req Request) (*Result, error) {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	if req.Resume != "" {
		args = append(args, "--resume", req.Resume)
	}
	if req.SystemPrompt != "" && req.Resume == "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}
	args = append(args, req.Prompt)

	cmd := exec.CommandContext(ctx, c.bin(), args...)
	cmd.Dir = req.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: start %s: %w", c.bin(), err)
	}

	result, parseErr := parseStream(stdout)

	waitErr := cmd.Wait()
	if parseErr != nil {
		return nil, fmt.Errorf("engine: parse output: %w", parseErr)
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A result event with is_error set still carries session state worth
		// persisting; surface it instead of the exit code.
		if result != nil && result.SessionID != "" {
			result.IsError = true
			return result, nil
		}
		return nil, fmt.Errorf("engine: %s exited: %w (stderr: %s)", c.bin(), waitErr, strings.TrimSpace(stderr.String()))
	}
	if result == nil {
		return nil, fmt.Errorf("engine: stream ended without a result event")
	}

	c.logger().Debug("engine turn complete",
		"session_id", result.SessionID,
		"num_turns", result.NumTurns,
		"cost_usd", result.TotalCostUSD,
		"is_error", result.IsError)
	return result, nil
}

// streamEvent is the envelope of one stream-json line. Only the fields the
// loop needs are decoded.
type streamEvent struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    string          `json:"session_id"`
	NumTurns     int             `json:"num_turns"`
	TotalCostUSD float64         `json:"total_cost_usd"`
	IsError      bool            `json:"is_error"`
	ResultText   string          `json:"result"`
	Message      json.RawMessage `json:"message"`
}

type assistantMessage struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// parseStream reads stream-json lines until EOF and folds them into a
// Result. Unknown event types are skipped; the terminal "result" event is
// authoritative for session metadata, assistant text accumulates as a
// fallback for streams that die before it.
func parseStream(r io.Reader) (*Result, error) {
	sc := bufio.NewScanner(r)
	// Single assistant messages can carry whole files.
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		res  *Result
		text strings.Builder
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			// Non-JSON noise on stdout is not fatal.
			continue
		}
		switch ev.Type {
		case "assistant":
			var msg assistantMessage
			if err := json.Unmarshal(ev.Message, &msg); err != nil {
				continue
			}
			for _, block := range msg.Content {
				if block.Type == "text" {
					text.WriteString(block.Text)
				}
			}
		case "result":
			res = &Result{
				SessionID:    ev.SessionID,
				NumTurns:     ev.NumTurns,
				TotalCostUSD: ev.TotalCostUSD,
				Text:         ev.ResultText,
				IsError:      ev.IsError || ev.Subtype == "error_max_turns",
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, err
	}
	if res != nil && res.Text == "" {
		res.Text = text.String()
	}
	return res, nil
}
