package scripting

import (
	"github.com/wasmerio/wasmer-go/wasmer"
)

// WasmerState is the concrete interpreter state §4.E.1 describes: an
// opaque, single-thread-use context. It wraps one wasmer.Store, reused
// across scripts so the (comparatively expensive) engine/store setup the
// teacher's wasm.Execute does per call happens once per pooled state
// instead of once per script.
type WasmerState struct {
	store *wasmer.Store
}

// NewWasmerStatePool builds a StatePool of capacity WasmerStates, matching
// the factory/finalizer shape §4.E.1 requires. Finalization relies on
// wasmer-go's own cgo finalizers for the underlying native store; there is
// no explicit Close on Store in this version of the binding, so the
// finalizer here exists to make the shutdown sequence explicit and to give
// a hook future wasmer-go versions' Close methods can be wired into.
func NewWasmerStatePool(capacity int) *StatePool[*WasmerState] {
	return NewStatePool(capacity,
		func() *WasmerState {
			engine := wasmer.NewEngine()
			store := wasmer.NewStore(engine)
			return &WasmerState{store: store}
		},
		func(s *WasmerState) { s.store = nil },
	)
}

// Execute instantiates wasmBytes as a module against this state's store and
// invokes its exported "main" function with input, mirroring the teacher's
// wasm.Execute but against a long-lived, pooled store instead of a
// freshly-constructed engine per call.
func (s *WasmerState) Execute(wasmBytes, input []byte) ([]byte, error) {
	module, err := wasmer.NewModule(s.store, wasmBytes)
	if err != nil {
		return nil, err
	}
	instance, err := wasmer.NewInstance(module, wasmer.NewImportObject())
	if err != nil {
		return nil, err
	}
	mainFunc, err := instance.Exports.GetFunction("main")
	if err != nil {
		return nil, err
	}
	result, err := mainFunc(input)
	if err != nil {
		return nil, err
	}
	if bytes, ok := result.([]byte); ok {
		return bytes, nil
	}
	return nil, nil
}
