package lockbox

import "encoding/json"

type (
	// Applier folds an update event into the state, returning the successor
	// state and the result delivered to the event's future. Appliers must
	// treat the state they receive as immutable and return a fresh value
	Applier[S any]  func(S, *Event) (S, any, error)
	Appliers[S any] map[EventType]Applier[S]

	// Querier computes a read-only result from the current state
	Querier[S any]  func(S, *Event) (any, error)
	Queriers[S any] map[EventType]Querier[S]

	// Model describes a state type to a backend: how to construct it, which
	// events mutate or read it, and how checkpoints encode it. Encode and
	// Restore may be left nil to use JSON
	Model[S any] struct {
		Init     func() S
		Appliers Appliers[S]
		Queriers Queriers[S]
		Encode   func(S) ([]byte, error)
		Restore  func([]byte) (S, error)
	}
)

func MakeApplier[S, Data any](
	fn func(S, Data) (S, any, error),
) Applier[S] {
	return func(state S, ev *Event) (S, any, error) {
		var data Data
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return state, nil, err
		}
		return fn(state, data)
	}
}

func MakeQuerier[S, Data any](fn func(S, Data) (any, error)) Querier[S] {
	return func(state S, ev *Event) (any, error) {
		var data Data
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return nil, err
		}
		return fn(state, data)
	}
}

func (m Model[S]) encode(state S) ([]byte, error) {
	if m.Encode != nil {
		return m.Encode(state)
	}
	return json.Marshal(state)
}

func (m Model[S]) restore(data []byte) (S, error) {
	if m.Restore != nil {
		return m.Restore(data)
	}
	state := m.Init()
	if err := json.Unmarshal(data, &state); err != nil {
		var zero S
		return zero, err
	}
	return state, nil
}
