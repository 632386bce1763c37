package controller

import (
	"context"
	"fmt"
	"log/slog"

	"adworkflow/engine/store"
)

// Supervisor runs a PreparedRun on a detached goroutine and finalizes its
// Execution's status even if the run panics, grounded on the original's
// background-task pattern: execute_workflow hands prepare_execution's
// result to asyncio.create_task and attaches a done-callback
// (_handle_task_exception) that marks the Execution FAILED when the task
// raised or CANCELLED when it was cancelled (execution.py).
type Supervisor struct {
	controller *Controller
	store      store.Store
	logger     *slog.Logger
}

// NewSupervisor builds a Supervisor. A nil logger defaults to slog.Default().
func NewSupervisor(c *Controller, s store.Store, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{controller: c, store: s, logger: logger}
}

// Launch starts p running on its own goroutine and returns immediately.
// The caller already holds a PENDING/RUNNING Execution record (created by
// Controller.Prepare) to report back to its own caller without waiting for
// the run to finish.
func (s *Supervisor) Launch(p PreparedRun) {
	go s.run(p)
}

func (s *Supervisor) run(p PreparedRun) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background execution panicked",
				"execution_id", p.ExecutionID, "panic", r)
			s.finalizeFailed(p.ExecutionID, fmt.Sprintf("panic: %v", r))
		}
	}()

	ctx := context.Background()
	if _, err := s.controller.Run(ctx, p); err != nil {
		s.logger.Error("background execution failed",
			"execution_id", p.ExecutionID, "error", err)
		s.finalizeFailed(p.ExecutionID, err.Error())
	}
}

// finalizeFailed best-effort marks an Execution FAILED; a failure here is
// logged, never propagated, matching _update_execution_status_safe's
// "suppress errors while updating error state" contract.
func (s *Supervisor) finalizeFailed(executionID, message string) {
	ctx := context.Background()
	upd := store.ExecutionUpdate{Status: store.ExecutionFailed, ErrorMessage: &message}
	if err := s.store.UpdateExecution(ctx, executionID, upd); err != nil {
		s.logger.Error("failed to record execution failure",
			"execution_id", executionID, "error", err)
	}
}
