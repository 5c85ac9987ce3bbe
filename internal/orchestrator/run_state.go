package orchestrator

import (
	"creative-backend/internal/core"
	"creative-backend/pkg/api"
)

const (
	taskQueued     = "queued"
	taskProcessing = "processing"
	taskComplete   = "complete"
	taskFailed     = "failed"
	taskCancelled  = "cancelled"
)

// roleMessage is sent by a role task to the event loop. A task sends one
// started notice per attempt, then exactly one message carrying its result.
type roleMessage struct {
	role    core.RoleDefinition
	started bool
	attempt int
	result  api.RoleResult
	err     error
}

// runState is owned by the event loop goroutine and never shared.
type runState struct {
	registry *core.Registry

	results            []api.RoleResult
	hardGateFailed     bool
	failedHardGateRole string
	completed          int
	total              int
	tasks              map[int]string
}

func newRunState(registry *core.Registry) *runState {
	tasks := make(map[int]string, registry.Len())
	for _, role := range registry.Roles() {
		tasks[role.Id] = taskQueued
	}
	return &runState{
		registry: registry,
		total:    registry.Len(),
		tasks:    tasks,
	}
}

func (s *runState) settled(roleId int) bool {
	switch s.tasks[roleId] {
	case taskComplete, taskFailed, taskCancelled:
		return true
	}
	return false
}

// fold applies a batch of messages that were available together. Notices and
// results are applied in arrival order, except failed hard gates: the one
// earliest in the registry is applied after everything else in the batch and
// decides the outcome. Returns true if a hard gate failed.
func (s *runState) fold(batch []roleMessage, emit func(api.Event)) bool {
	var failedGate *roleMessage
	for i, msg := range batch {
		if msg.started || s.settled(msg.role.Id) || !failsHardGate(msg) {
			continue
		}
		if failedGate == nil || s.registry.Position(msg.role.Id) < s.registry.Position(failedGate.role.Id) {
			failedGate = &batch[i]
		}
	}

	for _, msg := range batch {
		if msg.started {
			if s.settled(msg.role.Id) {
				continue
			}
			s.tasks[msg.role.Id] = taskProcessing
			emit(api.NewRoleUpdateEvent(msg.role.Name, api.RoleStatusProcessing))
			continue
		}
		if failsHardGate(msg) {
			continue
		}
		s.complete(msg, emit)
	}

	if failedGate == nil {
		return false
	}
	s.complete(*failedGate, emit)
	s.hardGateFailed = true
	s.failedHardGateRole = failedGate.role.Name
	s.cancelOutstanding()
	return true
}

func failsHardGate(msg roleMessage) bool {
	return !msg.started && msg.role.IsHardGate && !msg.result.Passed()
}

func (s *runState) complete(msg roleMessage, emit func(api.Event)) {
	if s.settled(msg.role.Id) {
		return
	}
	if msg.err != nil {
		s.tasks[msg.role.Id] = taskFailed
	} else {
		s.tasks[msg.role.Id] = taskComplete
	}
	s.results = append(s.results, msg.result)
	s.completed++
	emit(api.NewRoleCompleteEvent(msg.result, s.completed))
}

func (s *runState) cancelOutstanding() {
	for id := range s.tasks {
		if !s.settled(id) {
			s.tasks[id] = taskCancelled
		}
	}
}
