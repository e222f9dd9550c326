// Package workflow models the computation graph handed to the execution engine.
//
// A Graph maps node ids to nodes; a node has a class (the operation kind) and
// named inputs. An input is either a literal (string, number, bool) or a
// Connection to another node's output. On the wire a connection is the
// two-element array ["<node id>", <output index>].
//
// The graph is an arena: nodes are owned by id, connections refer to nodes
// only through ids, and every rewrite goes through the Graph so no caller
// holds stale node pointers across mutations.
package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when a node id is not in the graph.
	ErrNotFound = errors.New("workflow: node not found")

	// ErrIDCollision is returned when a stable id is already taken by a
	// node of another class.
	ErrIDCollision = errors.New("workflow: node id collision")

	// ErrDangling is returned by Validate when a connection references a
	// node that is not in the graph.
	ErrDangling = errors.New("workflow: dangling connection")
)

// Connection references output Output of node NodeID.
type Connection struct {
	NodeID string
	Output int
}

// Conn is shorthand for Connection{NodeID: id, Output: output}.
func Conn(id string, output int) Connection {
	return Connection{NodeID: id, Output: output}
}

// String renders the connection as "id:output".
func (c Connection) String() string {
	return c.NodeID + ":" + strconv.Itoa(c.Output)
}

// MarshalJSON encodes the connection as ["id", output].
func (c Connection) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.NodeID, c.Output})
}

// UnmarshalJSON decodes ["id", output].
func (c *Connection) UnmarshalJSON(data []byte) error {
	conn, ok := parseConnection(data)
	if !ok {
		return fmt.Errorf("workflow: %s is not a connection", data)
	}
	*c = conn
	return nil
}

// ParseConnection parses the CLI form "id:output".
func ParseConnection(s string) (Connection, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return Connection{}, fmt.Errorf("workflow: connection %q must look like <node id>:<output>", s)
	}
	out, err := strconv.Atoi(s[i+1:])
	if err != nil || out < 0 {
		return Connection{}, fmt.Errorf("workflow: connection %q has an invalid output index", s)
	}
	return Connection{NodeID: s[:i], Output: out}, nil
}

// parseConnection recognizes a JSON two-element [string, integer] array.
func parseConnection(data []byte) (Connection, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return Connection{}, false
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return Connection{}, false
	}
	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil {
		return Connection{}, false
	}
	var out int
	if err := json.Unmarshal(pair[1], &out); err != nil {
		return Connection{}, false
	}
	return Connection{NodeID: id, Output: out}, true
}

// Inputs maps input names to literals or Connections.
type Inputs map[string]any

// Connection returns the named input if it is a connection.
func (in Inputs) Connection(name string) (Connection, bool) {
	c, ok := in[name].(Connection)
	return c, ok
}

// Int returns the named input as an integer. Floats round half to even.
func (in Inputs) Int(name string) (int, bool) {
	switch v := in[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(math.RoundToEven(v)), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
		if f, err := v.Float64(); err == nil {
			return int(math.RoundToEven(f)), true
		}
	}
	return 0, false
}

// UnmarshalJSON decodes inputs, turning [string, int] pairs into
// Connections and keeping numbers as json.Number.
func (in *Inputs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Inputs, len(raw))
	for name, value := range raw {
		if conn, ok := parseConnection(value); ok {
			out[name] = conn
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("input %q: %w", name, err)
		}
		out[name] = v
	}
	*in = out
	return nil
}

// Node is one operation in the graph.
type Node struct {
	ClassType string `json:"class_type"`
	Inputs    Inputs `json:"inputs"`
}

// Graph is an insertion-ordered set of nodes keyed by id.
type Graph struct {
	order []string
	nodes map[string]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Has reports whether id is a node in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Put stores a node under id. An existing node keeps its position.
func (g *Graph) Put(id, classType string, inputs Inputs) *Node {
	if g.nodes == nil {
		g.nodes = make(map[string]*Node)
	}
	if inputs == nil {
		inputs = Inputs{}
	}
	n := &Node{ClassType: classType, Inputs: inputs}
	if _, ok := g.nodes[id]; !ok {
		g.order = append(g.order, id)
	}
	g.nodes[id] = n
	return n
}

// Create stores a node under a stable id and returns the id. Re-creating a
// node of the same class at the same id replaces it, so repeated builds are
// idempotent; an id held by another class is an ErrIDCollision.
func (g *Graph) Create(classType string, inputs Inputs, id string) (string, error) {
	if existing, ok := g.nodes[id]; ok && existing.ClassType != classType {
		return "", fmt.Errorf("%w: %s is a %s, not a %s", ErrIDCollision, id, existing.ClassType, classType)
	}
	g.Put(id, classType, inputs)
	return id, nil
}

// Remove deletes a node. Connections pointing at it are left untouched;
// callers check IsReferenced first.
func (g *Graph) Remove(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(o string) bool { return o == id })
	return nil
}

// All iterates nodes in insertion order.
func (g *Graph) All() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		for _, id := range g.order {
			if !yield(id, g.nodes[id]) {
				return
			}
		}
	}
}

// OfClass iterates the nodes of one class in insertion order.
func (g *Graph) OfClass(classType string) iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		for id, n := range g.All() {
			if n.ClassType != classType {
				continue
			}
			if !yield(id, n) {
				return
			}
		}
	}
}

// ReplaceConnection rewrites every input equal to old so that it points at
// replacement, and returns how many inputs changed.
func (g *Graph) ReplaceConnection(old, replacement Connection) int {
	changed := 0
	for _, n := range g.All() {
		for name, v := range n.Inputs {
			if c, ok := v.(Connection); ok && c == old {
				n.Inputs[name] = replacement
				changed++
			}
		}
	}
	return changed
}

// IsReferenced reports whether any input of any node connects to id.
func (g *Graph) IsReferenced(id string) bool {
	for _, n := range g.All() {
		for _, v := range n.Inputs {
			if c, ok := v.(Connection); ok && c.NodeID == id {
				return true
			}
		}
	}
	return false
}

// Validate checks that every connection references a node in the graph.
func (g *Graph) Validate() error {
	var errs []error
	for id, n := range g.All() {
		for _, name := range slices.Sorted(maps.Keys(n.Inputs)) {
			c, ok := n.Inputs[name].(Connection)
			if !ok || g.Has(c.NodeID) {
				continue
			}
			errs = append(errs, fmt.Errorf("%w: %s.%s -> %s", ErrDangling, id, name, c))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of the graph's structure. Literal values are
// shared, which is safe because they are immutable scalars.
func (g *Graph) Clone() *Graph {
	c := New()
	for id, n := range g.All() {
		c.Put(id, n.ClassType, maps.Clone(n.Inputs))
	}
	return c
}

// MarshalJSON writes nodes in insertion order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		node, err := json.Marshal(g.nodes[id])
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(node)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a graph document, keeping the document's node order.
func (g *Graph) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("workflow: graph document must be an object")
	}

	out := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("workflow: unexpected token %v", tok)
		}
		var n Node
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
		out.Put(id, n.ClassType, n.Inputs)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*g = *out
	return nil
}

// StableID returns the id of the index-th node of a family whose ids start
// at base. Ids are deterministic so recompiling the same request yields the
// same document.
func StableID(base, index int) string {
	return strconv.Itoa(base + index)
}
