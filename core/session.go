package core

import (
	"fmt"
	"sync"
	"time"
)

// Phase is one step of the fixed coordination sequence. Transitions move one
// direction only, per the legal table below; anything else is rejected with
// no state change.
type Phase string

const (
	PhaseInitialization        Phase = "initialization"
	PhaseParticipantCollection Phase = "participant_collection"
	PhaseScheduleCoordination  Phase = "schedule_coordination"
	PhaseVenueCoordination     Phase = "venue_coordination"
	PhaseCalendarIntegration   Phase = "calendar_integration"
	PhaseFinalConfirmation     Phase = "final_confirmation"
	PhaseAnnouncement          Phase = "announcement"
	PhaseCompleted             Phase = "completed"
)

// phaseTransitions is the legal transition table. ScheduleCoordination may
// skip VenueCoordination for venue-less event types.
var phaseTransitions = map[Phase][]Phase{
	PhaseInitialization:        {PhaseParticipantCollection},
	PhaseParticipantCollection: {PhaseScheduleCoordination},
	PhaseScheduleCoordination:  {PhaseVenueCoordination, PhaseCalendarIntegration},
	PhaseVenueCoordination:     {PhaseCalendarIntegration},
	PhaseCalendarIntegration:   {PhaseFinalConfirmation},
	PhaseFinalConfirmation:     {PhaseAnnouncement},
	PhaseAnnouncement:          {PhaseCompleted},
	PhaseCompleted:             {},
}

// CanTransitionTo reports whether next is a legal successor of p.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, t := range phaseTransitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// Successors returns the legal next phases of p.
func (p Phase) Successors() []Phase {
	out := make([]Phase, len(phaseTransitions[p]))
	copy(out, phaseTransitions[p])
	return out
}

// AutomationLevel controls how much of the workflow proceeds without human
// confirmation.
type AutomationLevel string

const (
	AutomationManual   AutomationLevel = "manual"
	AutomationSemiAuto AutomationLevel = "semi_auto"
	AutomationFullAuto AutomationLevel = "full_auto"
)

// maxActivityLog bounds the activity log; older entries are discarded first.
const maxActivityLog = 1000

// ErrorEntry records one coordination-level failure in the session log.
type ErrorEntry struct {
	Timestamp      time.Time   `json:"timestamp"`
	AgentName      string      `json:"agent_name"`
	Kind           FailureKind `json:"kind"`
	Message        string      `json:"message"`
	RecoveryAction string      `json:"recovery_action,omitempty"`
	Resolved       bool        `json:"resolved"`
}

// AgentInstance is the session's view of one managed worker. It is owned
// exclusively by the Session; mutate it only through Session methods.
type AgentInstance struct {
	AgentName     string         `json:"agent_name"`
	AgentID       string         `json:"agent_id"`
	Status        AgentStatus    `json:"status"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	CurrentTask   string         `json:"current_task,omitempty"`
	Progress      int            `json:"progress"`
	Result        map[string]any `json:"result,omitempty"`
	ErrorCount    int            `json:"error_count"`
}

// AgentSnapshot is the per-agent slice of a checkpoint.
type AgentSnapshot struct {
	Status   AgentStatus `json:"status"`
	Progress int         `json:"progress"`
	Task     string      `json:"task,omitempty"`
}

// Checkpoint is an immutable snapshot taken at every accepted phase
// transition. The checkpoint list is append-only and never compacted.
type Checkpoint struct {
	ID           string                   `json:"id"`
	Phase        Phase                    `json:"phase"`
	Timestamp    time.Time                `json:"timestamp"`
	WorkflowData map[string]any           `json:"workflow_data,omitempty"`
	AgentStates  map[string]AgentSnapshot `json:"agent_states,omitempty"`
	Note         string                   `json:"note,omitempty"`
}

// Session is the stateful record tracking one event's end-to-end coordination
// run. It is created once per coordination request, transitions phases
// monotonically, and is destroyed only at session cleanup.
//
// All mutation goes through methods guarded by an internal mutex; persistence
// uses the Version token for optimistic concurrency so two writers cannot
// silently drop each other's updates.
type Session struct {
	ID            string `json:"id"`
	EventID       string `json:"event_id"`
	CurrentPhase  Phase  `json:"current_phase"`
	PreviousPhase Phase  `json:"previous_phase,omitempty"`

	Agents          []AgentInstance `json:"agents"`
	CompletedAgents []string        `json:"completed_agents"`

	AutomationLevel AutomationLevel `json:"automation_level"`
	// Confirmations flags, per phase, whether a human check-in is wanted
	// before proceeding. Missing phases default to true.
	Confirmations map[Phase]bool `json:"confirmations,omitempty"`

	WorkflowData map[string]any `json:"workflow_data"`

	ErrorLog    []ErrorEntry `json:"error_log"`
	ActivityLog []string     `json:"activity_log"`
	Checkpoints []Checkpoint `json:"checkpoints"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Paused      bool       `json:"paused"`
	PauseReason string     `json:"pause_reason,omitempty"`

	// Version is the optimistic-concurrency token; stores reject a Save
	// whose version does not match the stored one.
	Version int64 `json:"version"`

	mu sync.RWMutex
}

// NewSession creates a session for the given event starting at the
// Initialization phase.
func NewSession(eventID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:              NewID(),
		EventID:         eventID,
		CurrentPhase:    PhaseInitialization,
		Agents:          []AgentInstance{},
		CompletedAgents: []string{},
		AutomationLevel: AutomationSemiAuto,
		WorkflowData:    map[string]any{},
		ErrorLog:        []ErrorEntry{},
		ActivityLog:     []string{},
		Checkpoints:     []Checkpoint{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Session) touch() { s.UpdatedAt = time.Now().UTC() }

// TransitionTo moves the session to next if the transition table allows it,
// appending exactly one checkpoint. Illegal transitions, and any transition
// attempted while paused, leave the session unchanged and return false.
func (s *Session) TransitionTo(next Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Paused {
		return false
	}
	if !s.CurrentPhase.CanTransitionTo(next) {
		return false
	}
	s.PreviousPhase = s.CurrentPhase
	s.CurrentPhase = next
	s.checkpointLocked(fmt.Sprintf("phase transition: %s -> %s", s.PreviousPhase, next))
	s.touch()
	return true
}

// AddAgent registers a managed worker on the session and returns its runtime
// id. Adding an already-present name is a no-op returning the existing id.
func (s *Session) AddAgent(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Agents {
		if s.Agents[i].AgentName == name {
			return s.Agents[i].AgentID
		}
	}
	inst := AgentInstance{AgentName: name, AgentID: NewID(), Status: StatusIdle}
	s.Agents = append(s.Agents, inst)
	s.logActivityLocked("agent added: " + name)
	s.touch()
	return inst.AgentID
}

// StartAgent marks an idle or waiting agent active with an optional task
// label. Returns false when the agent is unknown or not startable.
func (s *Session) StartAgent(name, task string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Agents {
		a := &s.Agents[i]
		if a.AgentName != name || (a.Status != StatusIdle && a.Status != StatusWaiting) {
			continue
		}
		now := time.Now().UTC()
		a.Status = StatusActive
		a.StartedAt = &now
		a.LastHeartbeat = &now
		if task != "" {
			a.CurrentTask = task
		}
		s.logActivityLocked("agent started: " + name)
		s.touch()
		return true
	}
	return false
}

// MarkAgentWaiting flags an agent as blocked on an unmet dependency.
func (s *Session) MarkAgentWaiting(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Agents {
		if s.Agents[i].AgentName == name {
			s.Agents[i].Status = StatusWaiting
			s.touch()
			return true
		}
	}
	return false
}

// CompleteAgent marks an active agent completed at 100% progress, recording
// its result and appending the name to the completed list.
func (s *Session) CompleteAgent(name string, result map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Agents {
		a := &s.Agents[i]
		if a.AgentName != name || a.Status != StatusActive {
			continue
		}
		now := time.Now().UTC()
		a.Status = StatusCompleted
		a.CompletedAt = &now
		a.Progress = 100
		if result != nil {
			a.Result = result
		}
		s.CompletedAgents = append(s.CompletedAgents, name)
		s.logActivityLocked("agent completed: " + name)
		s.touch()
		return true
	}
	return false
}

// FailAgent marks an agent errored and records an unresolved error entry.
func (s *Session) FailAgent(name string, kind FailureKind, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Agents {
		if s.Agents[i].AgentName != name {
			continue
		}
		s.Agents[i].Status = StatusError
		s.Agents[i].ErrorCount++
		s.logErrorLocked(name, kind, message)
		s.touch()
		return true
	}
	return false
}

// UpdateAgentProgress records progress (clamped to 0..100) and an optional
// task label for an active agent, refreshing its heartbeat timestamp.
func (s *Session) UpdateAgentProgress(name string, progress int, task string) bool {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Agents {
		a := &s.Agents[i]
		if a.AgentName != name || a.Status != StatusActive {
			continue
		}
		now := time.Now().UTC()
		a.Progress = progress
		a.LastHeartbeat = &now
		if task != "" {
			a.CurrentTask = task
		}
		s.touch()
		return true
	}
	return false
}

// AgentState returns a copy of the named agent's instance record.
func (s *Session) AgentState(name string) (AgentInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.Agents {
		if s.Agents[i].AgentName == name {
			return s.Agents[i], true
		}
	}
	return AgentInstance{}, false
}

// AgentCompleted reports whether the named agent has completed.
func (s *Session) AgentCompleted(name string) bool {
	a, ok := s.AgentState(name)
	return ok && a.Status == StatusCompleted
}

// SetWorkflowData stores a phase-scoped value in the workflow data map.
func (s *Session) SetWorkflowData(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WorkflowData[key] = value
	s.touch()
}

// GetWorkflowData returns a workflow data value and its existence flag.
func (s *Session) GetWorkflowData(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.WorkflowData[key]
	return v, ok
}

// LogError appends an unresolved error entry for the named agent.
func (s *Session) LogError(agentName string, kind FailureKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logErrorLocked(agentName, kind, message)
	s.touch()
}

// ResolveErrors marks every unresolved entry for the named agent as resolved
// with the given recovery action, returning how many were resolved.
func (s *Session) ResolveErrors(agentName, recoveryAction string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.ErrorLog {
		if s.ErrorLog[i].AgentName == agentName && !s.ErrorLog[i].Resolved {
			s.ErrorLog[i].Resolved = true
			s.ErrorLog[i].RecoveryAction = recoveryAction
			n++
		}
	}
	if n > 0 {
		s.touch()
	}
	return n
}

func (s *Session) logErrorLocked(agentName string, kind FailureKind, message string) {
	s.ErrorLog = append(s.ErrorLog, ErrorEntry{
		Timestamp: time.Now().UTC(),
		AgentName: agentName,
		Kind:      kind,
		Message:   message,
	})
	s.logActivityLocked(fmt.Sprintf("error: %s - %s: %s", agentName, kind, message))
}

// LogActivity appends a timestamped line to the bounded activity log.
func (s *Session) LogActivity(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logActivityLocked(message)
}

func (s *Session) logActivityLocked(message string) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), message)
	s.ActivityLog = append(s.ActivityLog, line)
	if len(s.ActivityLog) > maxActivityLog {
		s.ActivityLog = s.ActivityLog[len(s.ActivityLog)-maxActivityLog:]
	}
}

// checkpointLocked appends a snapshot of the workflow data and per-agent
// state under the current phase. Callers must hold the write lock.
func (s *Session) checkpointLocked(note string) {
	data := make(map[string]any, len(s.WorkflowData))
	for k, v := range s.WorkflowData {
		data[k] = v
	}
	states := make(map[string]AgentSnapshot, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		states[a.AgentName] = AgentSnapshot{Status: a.Status, Progress: a.Progress, Task: a.CurrentTask}
	}
	s.Checkpoints = append(s.Checkpoints, Checkpoint{
		ID:           NewID(),
		Phase:        s.CurrentPhase,
		Timestamp:    time.Now().UTC(),
		WorkflowData: data,
		AgentStates:  states,
		Note:         note,
	})
	s.logActivityLocked("checkpoint: " + note)
}

// Pause sets the pause flag with a reason. While paused the session rejects
// phase transitions, and the engine refuses new agent starts.
func (s *Session) Pause(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Paused = true
	s.PauseReason = reason
	s.logActivityLocked("session paused: " + reason)
	s.touch()
}

// Resume clears the pause flag.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Paused = false
	s.PauseReason = ""
	s.logActivityLocked("session resumed")
	s.touch()
}

// IsPaused reports the pause flag.
func (s *Session) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Paused
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentPhase
}

// ActiveAgentCount counts agents currently in the Active status.
func (s *Session) ActiveAgentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.Agents {
		if s.Agents[i].Status == StatusActive {
			n++
		}
	}
	return n
}

// UnresolvedErrorCount counts error entries not yet marked resolved.
func (s *Session) UnresolvedErrorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.ErrorLog {
		if !e.Resolved {
			n++
		}
	}
	return n
}

// PhaseDuration returns how long the session has been in the current phase,
// derived from checkpoint timestamps; before the first transition it falls
// back to the session age.
func (s *Session) PhaseDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.Checkpoints) - 1; i >= 0; i-- {
		if s.Checkpoints[i].Phase == s.CurrentPhase {
			return time.Since(s.Checkpoints[i].Timestamp)
		}
	}
	return time.Since(s.CreatedAt)
}

// IsExpired reports whether the session's expiry, if set, has elapsed. Expiry
// is checked only through this query; nothing enforces it actively.
func (s *Session) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ExpiresAt != nil && time.Now().UTC().After(*s.ExpiresAt)
}

// NeedsUserInteraction reports whether the current phase is one of the
// confirmation phases and confirmations are enabled for it (missing entries
// default to enabled).
func (s *Session) NeedsUserInteraction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.CurrentPhase {
	case PhaseScheduleCoordination, PhaseVenueCoordination, PhaseFinalConfirmation:
	default:
		return false
	}
	if s.Confirmations == nil {
		return true
	}
	if v, ok := s.Confirmations[s.CurrentPhase]; ok {
		return v
	}
	return true
}

// StatusSummary is a compact snapshot for status queries.
type StatusSummary struct {
	SessionID        string        `json:"session_id"`
	CurrentPhase     Phase         `json:"current_phase"`
	ActiveAgents     int           `json:"active_agents"`
	CompletedAgents  int           `json:"completed_agents"`
	UnresolvedErrors int           `json:"unresolved_errors"`
	Paused           bool          `json:"paused"`
	PhaseDuration    time.Duration `json:"phase_duration"`
	NeedsInteraction bool          `json:"needs_interaction"`
}

// Summary builds a StatusSummary snapshot.
func (s *Session) Summary() StatusSummary {
	return StatusSummary{
		SessionID:        s.ID,
		CurrentPhase:     s.Phase(),
		ActiveAgents:     s.ActiveAgentCount(),
		CompletedAgents:  len(s.completedCopy()),
		UnresolvedErrors: s.UnresolvedErrorCount(),
		Paused:           s.IsPaused(),
		PhaseDuration:    s.PhaseDuration(),
		NeedsInteraction: s.NeedsUserInteraction(),
	}
}

func (s *Session) completedCopy() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.CompletedAgents))
	copy(out, s.CompletedAgents)
	return out
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:              s.ID,
		EventID:         s.EventID,
		CurrentPhase:    s.CurrentPhase,
		PreviousPhase:   s.PreviousPhase,
		Agents:          make([]AgentInstance, len(s.Agents)),
		CompletedAgents: make([]string, len(s.CompletedAgents)),
		AutomationLevel: s.AutomationLevel,
		WorkflowData:    make(map[string]any, len(s.WorkflowData)),
		ErrorLog:        make([]ErrorEntry, len(s.ErrorLog)),
		ActivityLog:     make([]string, len(s.ActivityLog)),
		Checkpoints:     make([]Checkpoint, len(s.Checkpoints)),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		Paused:          s.Paused,
		PauseReason:     s.PauseReason,
		Version:         s.Version,
	}
	copy(clone.Agents, s.Agents)
	copy(clone.CompletedAgents, s.CompletedAgents)
	copy(clone.ErrorLog, s.ErrorLog)
	copy(clone.ActivityLog, s.ActivityLog)
	copy(clone.Checkpoints, s.Checkpoints)
	for k, v := range s.WorkflowData {
		clone.WorkflowData[k] = v
	}
	if s.Confirmations != nil {
		clone.Confirmations = make(map[Phase]bool, len(s.Confirmations))
		for k, v := range s.Confirmations {
			clone.Confirmations[k] = v
		}
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		clone.ExpiresAt = &t
	}
	return clone
}

// BumpVersion increments the optimistic-concurrency token. Stores call this
// after a successful Save.
func (s *Session) BumpVersion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Version++
}
