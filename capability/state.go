package capability

// Status 定义 Agent 生命周期状态
type Status string

const (
	StatusIdle     Status = "idle"     // Ready, no recent work
	StatusActive   Status = "active"   // Recently completed work, assignable
	StatusBusy     Status = "busy"     // Executing a task
	StatusError    Status = "error"    // Last task failed, needs reset
	StatusStopping Status = "stopping" // Stop requested, winding down
	StatusStopped  Status = "stopped"  // Terminal
)

// validTransitions 定义合法的状态转换
var validTransitions = map[Status][]Status{
	StatusIdle:     {StatusBusy, StatusStopping},
	StatusActive:   {StatusBusy, StatusIdle, StatusStopping},
	StatusBusy:     {StatusActive, StatusError, StatusStopping},
	StatusError:    {StatusIdle, StatusStopping},
	StatusStopping: {StatusStopped},
	StatusStopped:  {},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusStopped
}

// Assignable reports whether an agent in this status may accept a new task
// directly. Busy agents may still accept queued work under the queueing
// policy; that path is handled by Agent.Assign.
func (s Status) Assignable() bool {
	return s == StatusIdle || s == StatusActive
}

func (s Status) String() string {
	return string(s)
}
