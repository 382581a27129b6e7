// Package agent runs the poll/suspend loop shared by all agent types. One
// process owns one agent: it heartbeats while alive, persists its engine
// session after every turn, and leaves behind state that a replacement
// process can resume from after a crash.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/foundry/internal/classify"
	"github.com/alfredjeanlab/foundry/internal/engine"
	"github.com/alfredjeanlab/foundry/internal/events"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/idgen"
	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/session"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

// ErrIterationCeiling is returned when a loop runs for its maximum number of
// iterations without reaching a terminal state.
var ErrIterationCeiling = errors.New("agent: iteration ceiling reached")

// errStopRequested wakes a pacing sleep when a graceful stop comes in.
var errStopRequested = errors.New("agent: stop requested")

// enginePermissionMode is the tool-approval policy for unattended turns.
const enginePermissionMode = "acceptEdits"

// retryPrompt is the synthetic prompt issued after a transient engine
// failure, once the poll interval has passed.
const retryPrompt = "The previous request did not complete. Continue from where you left off."

// Loop drives one agent process. Fields without defaults are required.
type Loop struct {
	Role    Role
	Name    string
	Project string

	Store      taskstore.Store
	Runner     engine.Runner
	Classifier classify.Classifier
	Heartbeats *heartbeat.Store
	Sessions   *session.Store
	Events     events.Publisher
	Logger     *slog.Logger

	// Input, when non-nil, makes the loop block on questions instead of
	// polling past them.
	Input InputReader

	// Dir is the working directory handed to the engine, usually the
	// project clone. Empty means the agent process's own directory.
	Dir string

	// PollInterval paces turns while work is in flight; IdlePollInterval
	// paces re-checks when the role reports nothing to do.
	PollInterval     time.Duration
	IdlePollInterval time.Duration
	// MaxIterations bounds the loop; hitting it is an error exit.
	MaxIterations int

	// Signals delivers interrupt requests: the first is a graceful stop
	// (finish the in-flight turn, persist, exit), the second is immediate.
	Signals <-chan os.Signal

	// sleep is the pacing function, overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	stopping atomic.Bool
	// stop is closed on the first interrupt so pacing sleeps wake
	// immediately instead of running out their interval.
	stop chan struct{}
}

func (l *Loop) defaults() {
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	if l.Classifier == nil {
		l.Classifier = classify.Heuristic{}
	}
	if l.Events == nil {
		l.Events = &events.NoopPublisher{}
	}
	if l.PollInterval <= 0 {
		l.PollInterval = 30 * time.Second
	}
	if l.IdlePollInterval <= 0 {
		l.IdlePollInterval = 60 * time.Second
	}
	if l.MaxIterations <= 0 {
		l.MaxIterations = 100
	}
	if l.stop == nil {
		l.stop = make(chan struct{})
	}
	if l.sleep == nil {
		l.sleep = l.sleepInterruptible
	}
}

// sleepInterruptible paces the loop for d, waking early on cancellation or a
// graceful-stop request.
func (l *Loop) sleepInterruptible(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return errStopRequested
	case <-t.C:
		return nil
	}
}

// Run executes the agent until a terminal phase is reached. It always leaves
// a terminal heartbeat behind except on a hard (second-signal) stop, where
// exiting immediately matters more than bookkeeping.
func (l *Loop) Run(ctx context.Context) error {
	l.defaults()
	runID, err := idgen.NewRunID()
	if err != nil {
		return err
	}
	logger := l.Logger.With("agent", l.Name, "type", l.Role.Type(), "project", l.Project, "run", runID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if l.Signals != nil {
		go l.watchSignals(ctx, cancel, logger)
	}

	// Resume state from a previous process, if any.
	resume := ""
	if rec, err := l.Sessions.Get(l.Role.Type(), l.Name, l.Project); err != nil {
		logger.Warn("session record unreadable, starting fresh", "err", err)
	} else if rec != nil {
		resume = rec.SessionID
	}

	record := &heartbeat.Record{
		AgentType: l.Role.Type(),
		Name:      l.Name,
		Project:   l.Project,
		Status:    model.PhaseStarting,
	}
	resumeNote := ""
	if prev, err := l.Heartbeats.Read(heartbeat.Key{
		Project: l.Project, AgentType: l.Role.Type(), Name: l.Name,
	}); err == nil && prev != nil && !prev.Status.IsTerminal() {
		resumeNote = fmt.Sprintf(
			"You are resuming after an interruption. Your previous state was %q (%s). Pick up where you left off.",
			prev.Status, prev.Details)
		record.CurrentIssue = prev.CurrentIssue
		record.CurrentPR = prev.CurrentPR
	}

	if err := l.Heartbeats.Write(record); err != nil {
		return fmt.Errorf("agent: initial heartbeat: %w", err)
	}
	_ = l.Events.Publish(ctx, events.TopicAgentStarted, events.AgentStarted{
		AgentType: l.Role.Type(),
		Name:      l.Name,
		Project:   l.Project,
		RunID:     runID,
		PID:       os.Getpid(),
		Resumed:   resume != "",
	})
	logger.Info("agent started", "resumed", resume != "")

	turn := &Turn{
		Store:      l.Store,
		Heartbeats: l.Heartbeats,
		Record:     record,
		Events:     l.Events,
		Logger:     logger,
	}

	pendingAnswer := ""
	for iter := 1; ; iter++ {
		if iter > l.MaxIterations {
			l.exit(ctx, record, model.PhaseExitedError, logger)
			return fmt.Errorf("%w after %d iterations", ErrIterationCeiling, l.MaxIterations)
		}
		if l.stopping.Load() {
			l.exit(ctx, record, model.PhaseExitedTerminated, logger)
			return nil
		}
		turn.Iteration = iter

		prompt := pendingAnswer
		pendingAnswer = ""
		if prompt == "" {
			var err error
			prompt, err = l.Role.Prepare(ctx, turn)
			if errors.Is(err, ErrNoMoreWork) {
				logger.Info("no work remaining")
				l.exit(ctx, record, model.PhaseExitedSuccess, logger)
				return nil
			}
			if err != nil {
				// Tracker trouble is transient: report it and try again on
				// the next poll cycle. The iteration ceiling bounds how long
				// a broken tracker can keep an agent spinning.
				logger.Warn("prepare failed, retrying next cycle", "err", err)
				if err := l.sleep(ctx, l.PollInterval); err != nil {
					l.exit(ctx, record, model.PhaseExitedTerminated, logger)
					return nil
				}
				continue
			}
			if prompt == "" {
				record.Status = model.PhaseIdle
				if err := l.beat(ctx, record, logger); err != nil {
					l.exit(ctx, record, model.PhaseExitedError, logger)
					return err
				}
				if err := l.sleep(ctx, l.IdlePollInterval); err != nil {
					l.exit(ctx, record, model.PhaseExitedTerminated, logger)
					return nil
				}
				continue
			}
			if iter == 1 && resumeNote != "" {
				prompt = resumeNote + "\n\n" + prompt
			}
		}

		record.Status = model.PhaseWorking
		if err := l.beat(ctx, record, logger); err != nil {
			l.exit(ctx, record, model.PhaseExitedError, logger)
			return err
		}

		req := engine.Request{
			Prompt:         prompt,
			Resume:         resume,
			AllowedTools:   l.Role.AllowedTools(),
			PermissionMode: enginePermissionMode,
			Dir:            l.Dir,
		}
		if resume == "" {
			req.SystemPrompt = l.Role.SystemPrompt()
		}
		res, err := l.Runner.Run(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				// Hard stop: no state writes, the next process cleans up.
				return ctx.Err()
			}
			// Engine failures are transient: pace, then continue the
			// conversation with a synthetic retry prompt.
			logger.Warn("engine turn failed, retrying next cycle", "err", err)
			pendingAnswer = retryPrompt
			if err := l.sleep(ctx, l.PollInterval); err != nil {
				l.exit(ctx, record, model.PhaseExitedTerminated, logger)
				return nil
			}
			continue
		}

		resume = res.SessionID
		cost := res.TotalCostUSD
		if err := l.Sessions.Save(&session.Record{
			SessionID:    res.SessionID,
			AgentName:    l.Name,
			AgentType:    l.Role.Type(),
			Project:      l.Project,
			LastRun:      time.Now(),
			NumTurns:     res.NumTurns,
			TotalCostUSD: &cost,
		}); err != nil {
			// A session that cannot be persisted cannot be resumed; dying
			// loudly beats silently losing the conversation.
			logger.Error("session persist failed", "err", err)
			l.exit(ctx, record, model.PhaseExitedError, logger)
			return fmt.Errorf("agent: persist session: %w", err)
		}

		if l.stopping.Load() {
			l.exit(ctx, record, model.PhaseExitedTerminated, logger)
			return nil
		}
		if res.IsError {
			logger.Warn("engine reported an abnormal finish, retrying next cycle")
			pendingAnswer = retryPrompt
			if err := l.sleep(ctx, l.PollInterval); err != nil {
				l.exit(ctx, record, model.PhaseExitedTerminated, logger)
				return nil
			}
			continue
		}

		if err := l.Role.AfterReply(ctx, turn, res); err != nil {
			logger.Warn("after-reply protocol step failed, retrying next cycle", "err", err)
			if err := l.sleep(ctx, l.PollInterval); err != nil {
				l.exit(ctx, record, model.PhaseExitedTerminated, logger)
				return nil
			}
			continue
		}
		if err := l.beat(ctx, record, logger); err != nil {
			l.exit(ctx, record, model.PhaseExitedError, logger)
			return err
		}

		needs, err := l.Classifier.NeedsUserInput(ctx, res.Text)
		if err != nil {
			logger.Warn("classifier failed, treating reply as status", "err", err)
			needs = false
		}
		if needs && l.Input != nil {
			// A blocking read is no place to discover a pending stop.
			if l.stopping.Load() {
				l.exit(ctx, record, model.PhaseExitedTerminated, logger)
				return nil
			}
			question, err := l.Classifier.ExtractQuestion(ctx, res.Text)
			if err != nil || question == "" {
				question = res.Text
			}
			answer, err := l.Input.ReadAnswer(question)
			if err != nil {
				logger.Error("reading answer failed", "err", err)
				l.exit(ctx, record, model.PhaseExitedError, logger)
				return err
			}
			pendingAnswer = answer
			continue
		}

		if err := l.sleep(ctx, l.PollInterval); err != nil {
			l.exit(ctx, record, model.PhaseExitedTerminated, logger)
			return nil
		}
	}
}

// beat persists the current record and mirrors it onto the bus. A write
// failure is fatal for the agent: a heartbeat that cannot be refreshed makes
// the whole liveness protocol lie.
func (l *Loop) beat(ctx context.Context, record *heartbeat.Record, logger *slog.Logger) error {
	if err := l.Heartbeats.Write(record); err != nil {
		logger.Error("heartbeat write failed", "err", err)
		return fmt.Errorf("agent: heartbeat write: %w", err)
	}
	_ = l.Events.Publish(ctx, events.TopicAgentHeartbeat, events.AgentHeartbeat{
		AgentType: record.AgentType,
		Name:      record.Name,
		Project:   record.Project,
		Status:    record.Status,
		Details:   record.Details,
	})
	return nil
}

// exit records the terminal phase. CurrentIssue/CurrentPR are kept so a
// human reading the record sees what the agent was doing when it stopped.
func (l *Loop) exit(ctx context.Context, record *heartbeat.Record, phase model.Phase, logger *slog.Logger) {
	record.Status = phase
	if err := l.Heartbeats.Write(record); err != nil {
		logger.Warn("terminal heartbeat write failed", "err", err)
	}
	_ = l.Events.Publish(ctx, events.TopicAgentExited, events.AgentExited{
		AgentType: record.AgentType,
		Name:      record.Name,
		Project:   record.Project,
		Status:    phase,
	})
	logger.Info("agent exited", "status", phase)
}

// watchSignals implements the two-stage interrupt: first signal requests a
// graceful stop after the in-flight turn, second cancels everything now.
func (l *Loop) watchSignals(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-l.Signals:
			if !ok {
				return
			}
			if l.stopping.CompareAndSwap(false, true) {
				logger.Info("interrupt received, finishing current turn (interrupt again to stop immediately)")
				close(l.stop)
				continue
			}
			logger.Warn("second interrupt, stopping immediately")
			cancel()
			return
		}
	}
}
