package kernel

import (
	"fmt"
	"sync"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/envelope"
)

// StepMode is the kind of one-shot step requested while a DebugSession is
// Paused. Stored on the owning ProcessControlBlock until the next tick that
// matches its depth rule, then cleared.
type StepMode string

const (
	// StepInto stops at the next tick regardless of call depth.
	StepInto StepMode = "step_in"
	// StepOver stops at the next tick at the same or shallower depth.
	StepOver StepMode = "step_over"
	// StepOut stops at the next tick shallower than the current depth.
	StepOut StepMode = "step_out"
)

// satisfies reports whether a tick at tickDepth should stop execution,
// given the step was requested while paused at pausedDepth.
func (m StepMode) satisfies(pausedDepth, tickDepth int) bool {
	switch m {
	case StepInto:
		return true
	case StepOver:
		return tickDepth <= pausedDepth
	case StepOut:
		return tickDepth < pausedDepth
	default:
		return false
	}
}

// Breakpoint is a location a DebugSession stops execution at. Location is
// engine-defined (e.g. "script.lua:42" or a hook point name); Condition, if
// non-empty, is evaluated by the caller (coreengine/script's
// ConditionEvaluator) before a hit counts — DebugSession itself only tracks
// enablement and hit counts.
type Breakpoint struct {
	ID        string
	Location  string
	Condition string
	Enabled   bool
	HitCount  int
}

// ToDebugState renders ps in the three-state vocabulary the debug protocol
// exposes to clients: Running/Paused/Terminated. Every other ProcessState
// collapses to "running" since a debug client never observes
// NEW/READY/BLOCKED/ZOMBIE as a distinct phase.
func ToDebugState(ps ProcessState) string {
	switch ps {
	case ProcessStateWaiting:
		return "paused"
	case ProcessStateTerminated, ProcessStateZombie:
		return "terminated"
	default:
		return "running"
	}
}

// DebugSession is the per-process debug controller: breakpoint set, current
// call depth, and the Paused/Running state machine built directly on
// LifecycleManager's ProcessState transitions and InterruptService's
// KernelInterrupt plumbing — a debug session never invents its own state
// enum, it reuses ProcessStateRunning/Waiting/Terminated and models a
// breakpoint hit as an InterruptKindBreakpoint KernelInterrupt.
type DebugSession struct {
	pid         string
	requestID   string
	userID      string
	sessionID   string
	envelopeID  string
	lifecycle   *LifecycleManager
	interrupts  *InterruptService

	mu          sync.Mutex
	breakpoints map[string]*Breakpoint
	depth       int
}

// NewDebugSession builds a DebugSession for an already-submitted process
// pid, sharing lifecycle's and interrupts' state with the rest of the
// kernel.
func NewDebugSession(pid, requestID, userID, sessionID, envelopeID string, lifecycle *LifecycleManager, interrupts *InterruptService) *DebugSession {
	return &DebugSession{
		pid: pid, requestID: requestID, userID: userID, sessionID: sessionID, envelopeID: envelopeID,
		lifecycle:   lifecycle,
		interrupts:  interrupts,
		breakpoints: make(map[string]*Breakpoint),
	}
}

// SetBreakpoint registers or updates a breakpoint, returning its ID.
func (d *DebugSession) SetBreakpoint(id, location, condition string) *Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	bp := &Breakpoint{ID: id, Location: location, Condition: condition, Enabled: true}
	d.breakpoints[id] = bp
	return bp
}

// RemoveBreakpoint deletes a breakpoint by ID.
func (d *DebugSession) RemoveBreakpoint(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.breakpoints, id)
}

// Breakpoints returns a snapshot of all registered breakpoints.
func (d *DebugSession) Breakpoints() []*Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Breakpoint, 0, len(d.breakpoints))
	for _, bp := range d.breakpoints {
		out = append(out, bp)
	}
	return out
}

// State returns the session's current debug state.
func (d *DebugSession) State() string {
	pcb := d.lifecycle.GetProcess(d.pid)
	if pcb == nil {
		return "terminated"
	}
	return ToDebugState(pcb.State)
}

// OnTick is called by the script engine at every steppable point (a
// statement boundary, a hook invocation, a breakpoint-eligible location),
// passing the current call depth and, when the tick lands on a known
// breakpoint, its location. It returns the interrupt that paused the
// process, or nil if execution should continue uninterrupted.
func (d *DebugSession) OnTick(location string, tickDepth int) (*KernelInterrupt, error) {
	pcb := d.lifecycle.GetProcess(d.pid)
	if pcb == nil {
		return nil, fmt.Errorf("kernel: unknown debug session pid %s", d.pid)
	}

	d.mu.Lock()
	var hitBreakpoint *Breakpoint
	for _, bp := range d.breakpoints {
		if bp.Enabled && bp.Location == location {
			hitBreakpoint = bp
			break
		}
	}
	stepMode := pcb.StepMode
	pausedDepth := pcb.StepDepth
	d.mu.Unlock()

	shouldPause := hitBreakpoint != nil
	if !shouldPause && stepMode != nil && stepMode.satisfies(pausedDepth, tickDepth) {
		shouldPause = true
	}
	if !shouldPause {
		return nil, nil
	}

	if hitBreakpoint != nil {
		d.mu.Lock()
		hitBreakpoint.HitCount++
		d.mu.Unlock()
	}

	if err := d.lifecycle.TransitionState(d.pid, ProcessStateWaiting, "breakpoint"); err != nil {
		return nil, err
	}
	pcb.StepMode = nil
	pcb.StepDepth = 0
	d.depth = tickDepth

	data := map[string]any{"location": location, "depth": tickDepth}
	if hitBreakpoint != nil {
		data["breakpoint_id"] = hitBreakpoint.ID
	}
	interrupt := d.interrupts.CreateInterrupt(
		envelope.InterruptKindBreakpoint,
		d.requestID, d.userID, d.sessionID, d.envelopeID,
		WithInterruptData(data),
	)
	pcb.PendingInterrupt = &interrupt.Kind
	return interrupt, nil
}

// resume transitions the process back to Running and clears any pending
// breakpoint interrupt, recording the given step mode (nil for a plain
// continue) for OnTick to consult on the next tick.
func (d *DebugSession) resume(mode *StepMode) error {
	pcb := d.lifecycle.GetProcess(d.pid)
	if pcb == nil {
		return fmt.Errorf("kernel: unknown debug session pid %s", d.pid)
	}
	// Waiting cannot transition directly to Running (see validTransitions in
	// lifecycle.go); a debug resume goes through Ready the same way a
	// clarification response does.
	if err := d.lifecycle.TransitionState(d.pid, ProcessStateReady, "resume"); err != nil {
		return err
	}
	if err := d.lifecycle.TransitionState(d.pid, ProcessStateRunning, "resume"); err != nil {
		return err
	}
	pcb.StepMode = mode
	pcb.StepDepth = d.depth
	pcb.PendingInterrupt = nil
	return nil
}

// Continue resumes execution until the next breakpoint.
func (d *DebugSession) Continue() error { return d.resume(nil) }

// StepIn resumes execution, pausing again at the very next tick.
func (d *DebugSession) StepIn() error { m := StepInto; return d.resume(&m) }

// StepOver resumes execution, pausing at the next tick no deeper than the
// current call depth (skipping over nested calls).
func (d *DebugSession) StepOver() error { m := StepOver; return d.resume(&m) }

// StepOut resumes execution, pausing at the next tick shallower than the
// current call depth (running until the current call returns).
func (d *DebugSession) StepOut() error { m := StepOut; return d.resume(&m) }

// Terminate ends the debug session's process.
func (d *DebugSession) Terminate(reason string) error {
	return d.lifecycle.Terminate(d.pid, reason, true)
}

// =============================================================================
// Debug Session Registry
// =============================================================================

// StartDebugSession creates and registers a DebugSession for pid, replacing
// any session already registered for that pid.
func (k *Kernel) StartDebugSession(pid, requestID, userID, sessionID, envelopeID string) *DebugSession {
	session := NewDebugSession(pid, requestID, userID, sessionID, envelopeID, k.lifecycle, k.interrupts)

	k.debugMu.Lock()
	k.debugSessions[pid] = session
	k.debugMu.Unlock()

	if k.logger != nil {
		k.logger.Info("debug_session_started", "pid", pid, "request_id", requestID)
	}
	return session
}

// GetDebugSession returns the registered session for pid, or nil if none.
func (k *Kernel) GetDebugSession(pid string) *DebugSession {
	k.debugMu.RLock()
	defer k.debugMu.RUnlock()
	return k.debugSessions[pid]
}

// EndDebugSession removes pid's registered session, if any.
func (k *Kernel) EndDebugSession(pid string) {
	k.debugMu.Lock()
	delete(k.debugSessions, pid)
	k.debugMu.Unlock()

	if k.logger != nil {
		k.logger.Info("debug_session_ended", "pid", pid)
	}
}
