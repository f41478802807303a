package experiment

import (
	"encoding/json"
)

// Trace captures how each configuration layer contributed to a key, strongest
// layer first.
type Trace struct {
	Key    string            `json:"key"`
	Layers []LayerProvenance `json:"layers"`
}

// LayerProvenance details how a specific layer contributed to a traced key.
type LayerProvenance struct {
	Scope  Scope  `json:"scope"`
	Source string `json:"source"`
	Key    string `json:"key"`
	Value  any    `json:"value,omitempty"`
	Found  bool   `json:"found"`
}

// Winner returns the strongest layer holding a value for the key. Function
// defaults contested between callables are reported as the strongest of them.
func (t Trace) Winner() (LayerProvenance, bool) {
	for _, layer := range t.Layers {
		if layer.Found {
			return layer, true
		}
	}
	return LayerProvenance{}, false
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
