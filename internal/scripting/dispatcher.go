package scripting

import (
	"context"

	"github.com/Kinubi/zephyr-engine/internal/diagnostics"
)

// CVarHandler is a script-side handler invoked with (name, oldValue,
// newValue) when a registered cvar changes, per §8 S5.
type CVarHandler func(name, oldValue, newValue string)

// LogSink receives forwarded script-result messages, per §4.E.4's "forward
// to the console/log sink".
type LogSink func(success bool, message string)

// Dispatcher is the main-thread drain loop of §4.E.4: once per frame it
// collects pending cvar changes, then drains the action queue, routing each
// action by kind.
type Dispatcher[S any] struct {
	actions  *ActionQueue
	cvars    *CVarRegistry
	states   *StatePool[S]
	logger   *diagnostics.Logger
	logSink  LogSink
	handlers map[string]CVarHandler
	custom   func(CustomEvent)
}

// NewDispatcher wires a Dispatcher to the shared action queue, cvar
// registry, and interpreter-state pool (needed because a cvar-change
// handler call is itself scripted, per §4.E.4 step 2).
func NewDispatcher[S any](actions *ActionQueue, cvars *CVarRegistry, states *StatePool[S]) *Dispatcher[S] {
	return &Dispatcher[S]{
		actions:  actions,
		cvars:    cvars,
		states:   states,
		logger:   diagnostics.Default("scripting.dispatcher"),
		handlers: make(map[string]CVarHandler),
	}
}

// OnLog registers the sink script-result actions are forwarded to.
func (d *Dispatcher[S]) OnLog(sink LogSink) { d.logSink = sink }

// OnCustom registers the handler Custom actions are forwarded to.
func (d *Dispatcher[S]) OnCustom(fn func(CustomEvent)) { d.custom = fn }

// RegisterCVarHandler installs the script-side handler named by a cvar's
// Register(..., handler) call.
func (d *Dispatcher[S]) RegisterCVarHandler(name string, fn CVarHandler) {
	d.handlers[name] = fn
}

// Tick runs one dispatcher pass, per §4.E.4: queue pending cvar changes as
// actions, then drain and route every action currently in the queue. It
// must be called from the main thread, once per frame.
func (d *Dispatcher[S]) Tick(ctx context.Context) {
	for _, change := range d.cvars.DrainPending() {
		payload := EncodeCVarChange(change.Handler, change.Name, change.OldValue, change.NewValue)
		if err := d.actions.Push(Action{Kind: CVarChange, Payload: payload}); err != nil {
			d.logger.Warn("cvar-change action dropped", diagnostics.Err(err), diagnostics.String("cvar", change.Name))
		}
	}

	for {
		action, ok := d.actions.TryPop()
		if !ok {
			return
		}
		d.dispatch(ctx, action)
	}
}

func (d *Dispatcher[S]) dispatch(ctx context.Context, action Action) {
	switch action.Kind {
	case ScriptResult:
		if d.logSink != nil {
			d.logSink(true, string(action.Payload))
		}
	case CVarChange:
		handler, name, oldValue, newValue, ok := DecodeCVarChange(action.Payload)
		if !ok {
			diagnostics.ReportMisuse("cvar-change-payload", diagnostics.ErrGuardMisuse)
			return
		}
		fn, ok := d.handlers[handler]
		if !ok {
			return
		}
		// A cvar-change handler may mutate engine state (§4.E.4); unlike a
		// script job it does not run through a pooled state's Execute, it
		// runs the caller-provided Go closure directly. Acquire/release a
		// state anyway so handlers that do want to call back into the
		// interpreter (e.g. to re-run a snippet) have one available, per
		// the "acquire a state; call the named handler" step.
		state, err := d.states.Acquire(ctx)
		if err == nil {
			defer d.states.Release(state)
		}
		fn(name, oldValue, newValue)
	case Custom:
		if d.custom != nil {
			if ev, ok := DecodeCustomEvent(action.Payload); ok {
				d.custom(ev)
			}
		}
	}
}
