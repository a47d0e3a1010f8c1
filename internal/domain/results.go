package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxImpactDepth bounds the impact tree. The tree shape is model output and
// therefore untrusted input; validation rejects anything deeper.
const MaxImpactDepth = 16

// DiffChange is one detected difference between the two plan revisions.
type DiffChange struct {
	Zone        string `json:"zone"`
	Kind        string `json:"kind"` // added, removed, modified
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"` // baja, media, alta
}

// DiffResult is the output of the diff stage.
type DiffResult struct {
	Summary string       `json:"summary"`
	Changes []DiffChange `json:"changes"`
}

// CubicacionItem is one quantity line affected by the detected changes.
type CubicacionItem struct {
	Code           string  `json:"code,omitempty"`
	Description    string  `json:"description"`
	Unit           string  `json:"unit"`
	QuantityBefore float64 `json:"quantity_before"`
	QuantityAfter  float64 `json:"quantity_after"`
	Delta          float64 `json:"delta"`
}

// CubicacionResult is the output of the cubicación stage.
type CubicacionResult struct {
	Items []CubicacionItem `json:"items"`
	Notes string           `json:"notes,omitempty"`
}

// ImpactNode is one node of the recursive impact tree produced by the final
// stage. Children carry the same type to unbounded (but validated) depth.
type ImpactNode struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	CostDelta   float64      `json:"cost_delta,omitempty"`
	Children    []ImpactNode `json:"children,omitempty"`
}

// ImpactosResult is the output of the impactos stage.
type ImpactosResult struct {
	Summary  string       `json:"summary,omitempty"`
	Impactos []ImpactNode `json:"impactos"`
}

// WalkImpactos visits every node of the tree iteratively (depth-first,
// document order) and returns an error if the tree exceeds MaxImpactDepth.
// Traversal is stack-based on purpose: depth is input-controlled.
func (r *ImpactosResult) WalkImpactos(visit func(node *ImpactNode, depth int)) error {
	type frame struct {
		node  *ImpactNode
		depth int
	}
	stack := make([]frame, 0, len(r.Impactos))
	for i := len(r.Impactos) - 1; i >= 0; i-- {
		stack = append(stack, frame{&r.Impactos[i], 1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > MaxImpactDepth {
			return fmt.Errorf("impact tree exceeds maximum depth %d", MaxImpactDepth)
		}
		if visit != nil {
			visit(f.node, f.depth)
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{&f.node.Children[i], f.depth + 1})
		}
	}
	return nil
}

// CountImpactos returns the total node count of the impact tree.
func (r *ImpactosResult) CountImpactos() (int, error) {
	n := 0
	err := r.WalkImpactos(func(*ImpactNode, int) { n++ })
	return n, err
}

// Valuer/Scanner implementations so result columns are stored as JSON text,
// matching how the rest of the schema stores structured fields.

func scanJSON(value interface{}, dest interface{}, what string) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan " + what)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, dest)
}

func valueJSON(src interface{}) (driver.Value, error) {
	b, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Value implements the driver.Valuer interface for database serialization.
func (r DiffResult) Value() (driver.Value, error) { return valueJSON(r) }

// Scan implements the sql.Scanner interface for database deserialization.
func (r *DiffResult) Scan(value interface{}) error { return scanJSON(value, r, "DiffResult") }

// Value implements the driver.Valuer interface for database serialization.
func (r CubicacionResult) Value() (driver.Value, error) { return valueJSON(r) }

// Scan implements the sql.Scanner interface for database deserialization.
func (r *CubicacionResult) Scan(value interface{}) error { return scanJSON(value, r, "CubicacionResult") }

// Value implements the driver.Valuer interface for database serialization.
func (r ImpactosResult) Value() (driver.Value, error) { return valueJSON(r) }

// Scan implements the sql.Scanner interface for database deserialization.
func (r *ImpactosResult) Scan(value interface{}) error { return scanJSON(value, r, "ImpactosResult") }
