package model

import "encoding/json"

// OperationStatus reports whether a single operation took effect
type OperationStatus string

const (
	OperationApplied OperationStatus = "applied"
	OperationFailed  OperationStatus = "failed"
	OperationSkipped OperationStatus = "skipped"
)

// Operation represents one structured action reported by the command
// executor. Type is an open tag; Details carries the kind-specific payload
// verbatim so unknown kinds survive storage and listing unchanged.
type Operation struct {
	Type    string          `json:"type"`
	Summary string          `json:"summary,omitempty"`
	Target  string          `json:"target,omitempty"`
	Status  OperationStatus `json:"status,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Operations is the ordered list of actions from one execution
type Operations []Operation

// Encode serializes the list for storage. Empty lists encode to nil.
func (ops Operations) Encode() ([]byte, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	return json.Marshal(ops)
}

// DecodeOperations reconstructs a stored list. Empty input yields nil.
func DecodeOperations(data []byte) (Operations, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ops Operations
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}
