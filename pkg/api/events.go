package api

const (
	EventStart          = "start"
	EventRoleUpdate     = "role_update"
	EventRoleComplete   = "role_complete"
	EventHardGateFailed = "hard_gate_failed"
	EventHeartbeat      = "heartbeat"
	EventComplete       = "complete"
	EventError          = "error"
	EventTerminated     = "terminated"
)

const RoleStatusProcessing = "processing"

// Event is one record of an evaluation progress stream.
type Event interface {
	EventType() string
}

// IsTerminal reports whether no further events follow e.
func IsTerminal(e Event) bool {
	switch e.EventType() {
	case EventComplete, EventError, EventTerminated:
		return true
	}
	return false
}

type StartEvent struct {
	Type       string `json:"type"`
	TotalRoles int    `json:"total_roles"`
}

func (e StartEvent) EventType() string { return EventStart }

type RoleStatus struct {
	RoleName string `json:"role_name"`
	Status   string `json:"status"`
}

type RoleUpdateEvent struct {
	Type string     `json:"type"`
	Role RoleStatus `json:"role"`
}

func (e RoleUpdateEvent) EventType() string { return EventRoleUpdate }

type RoleCompleteEvent struct {
	Type     string     `json:"type"`
	Role     RoleResult `json:"role"`
	Progress int        `json:"progress"`
}

func (e RoleCompleteEvent) EventType() string { return EventRoleComplete }

type HardGateFailedEvent struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

func (e HardGateFailedEvent) EventType() string { return EventHardGateFailed }

type HeartbeatEvent struct {
	Type string `json:"type"`
}

func (e HeartbeatEvent) EventType() string { return EventHeartbeat }

type CompleteEvent struct {
	Type   string           `json:"type"`
	Result EvaluationResult `json:"result"`
}

func (e CompleteEvent) EventType() string { return EventComplete }

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e ErrorEvent) EventType() string { return EventError }

// TerminatedEvent closes a stream after a hard gate failed. Result holds the
// partial evaluation with a DO_NOT_RECOMMEND report.
type TerminatedEvent struct {
	Type   string           `json:"type"`
	Result EvaluationResult `json:"result"`
}

func (e TerminatedEvent) EventType() string { return EventTerminated }

func NewStartEvent(totalRoles int) StartEvent {
	return StartEvent{Type: EventStart, TotalRoles: totalRoles}
}

func NewRoleUpdateEvent(roleName, status string) RoleUpdateEvent {
	return RoleUpdateEvent{Type: EventRoleUpdate, Role: RoleStatus{RoleName: roleName, Status: status}}
}

func NewRoleCompleteEvent(result RoleResult, progress int) RoleCompleteEvent {
	return RoleCompleteEvent{Type: EventRoleComplete, Role: result, Progress: progress}
}

func NewHardGateFailedEvent(roleName string) HardGateFailedEvent {
	return HardGateFailedEvent{Type: EventHardGateFailed, Role: roleName}
}

func NewHeartbeatEvent() HeartbeatEvent {
	return HeartbeatEvent{Type: EventHeartbeat}
}

func NewCompleteEvent(result EvaluationResult) CompleteEvent {
	return CompleteEvent{Type: EventComplete, Result: result}
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

func NewTerminatedEvent(result EvaluationResult) TerminatedEvent {
	return TerminatedEvent{Type: EventTerminated, Result: result}
}
