// File: internal/services/executor.go
package services

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/deploymenttheory/go-bootfirm/internal/interfaces"
)

// Action selects what Execute does with each planned update.
type Action int

const (
	// DryRun reports the changes that would be made without touching
	// any device.
	DryRun Action = iota
	// Interactive asks for confirmation before each change.
	Interactive
	// Force makes every change without prompting.
	Force
)

// String returns the action name used in logs and flag handling.
func (a Action) String() string {
	switch a {
	case DryRun:
		return "dry-run"
	case Interactive:
		return "interactive"
	case Force:
		return "force"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// UpdateExecutor carries an update plan out, reporting each change on
// its output writer. Confirmation prompts are answered from the
// executor's input reader.
type UpdateExecutor struct {
	logger  *slog.Logger
	engine  interfaces.CopyEngine
	out     io.Writer
	prompts *bufio.Scanner
}

// NewUpdateExecutor builds an executor writing its report to out and
// reading confirmations from in.
func NewUpdateExecutor(logger *slog.Logger, engine interfaces.CopyEngine, out io.Writer, in io.Reader) *UpdateExecutor {
	return &UpdateExecutor{
		logger:  logger,
		engine:  engine,
		out:     out,
		prompts: bufio.NewScanner(in),
	}
}

// Execute walks the plan in order and applies the given action to each
// update. The first write failure aborts the rest of the plan; the
// devices written so far stay written.
func (e *UpdateExecutor) Execute(plan *UpdatePlan, action Action) error {
	e.logger.Debug("executing update plan",
		"run_id", plan.RunID,
		"action", action,
		"updates", len(plan.Updates))

	for _, update := range plan.Updates {
		destination := update.Target.String()
		source := fmt.Sprintf("%s (%d bytes)", update.Source.Path(), update.Source.Size())

		switch action {
		case DryRun:
			fmt.Fprintf(e.out, "%s would be overwritten by %s\n", destination, source)

		case Force:
			fmt.Fprintf(e.out, "%s will be overwritten with the contents of %s\n", destination, source)
			if err := e.apply(plan, update); err != nil {
				return err
			}

		case Interactive:
			confirmed, err := e.confirm(destination, source)
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Fprintln(e.out, "Skipping...")
				continue
			}
			if err := e.apply(plan, update); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown action %d", int(action))
		}
	}

	return nil
}

func (e *UpdateExecutor) apply(plan *UpdatePlan, update PlannedUpdate) error {
	if err := e.engine.Copy(update.Source, update.Target); err != nil {
		return err
	}
	e.logger.Info("overwrote firmware image",
		"run_id", plan.RunID,
		"target", update.Target.Path(),
		"offset", fmt.Sprintf("%#x", update.Target.Offset()),
		"source", update.Source.Path())
	return nil
}

func (e *UpdateExecutor) confirm(destination, source string) (bool, error) {
	fmt.Fprintf(e.out, "Should %s be overwritten by %s? [y/N] ", destination, source)

	if !e.prompts.Scan() {
		if err := e.prompts.Err(); err != nil {
			return false, fmt.Errorf("reading confirmation: %w", err)
		}
		return false, fmt.Errorf("reading confirmation: %w", io.ErrUnexpectedEOF)
	}

	response := strings.ToLower(strings.TrimSpace(e.prompts.Text()))
	return response == "y" || response == "yes", nil
}
