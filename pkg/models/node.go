// Package models defines the workflow graph: nodes, edges, workflows, versions and executions.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
)

// NodeKind identifies which configuration variant a node carries.
type NodeKind string

const (
	NodeKindStart  NodeKind = "start"
	NodeKindHTTP   NodeKind = "http"
	NodeKindCode   NodeKind = "code"
	NodeKindOutput NodeKind = "output"
)

// NodeKinds returns the closed set of node kinds.
func NodeKinds() []NodeKind {
	return []NodeKind{NodeKindStart, NodeKindHTTP, NodeKindCode, NodeKindOutput}
}

// Known reports whether k is one of NodeKinds.
func (k NodeKind) Known() bool {
	switch k {
	case NodeKindStart, NodeKindHTTP, NodeKindCode, NodeKindOutput:
		return true
	default:
		return false
	}
}

// HTTP methods accepted by http nodes.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodPatch  = "PATCH"
)

// HTTPMethods returns the closed set of methods an http node may use.
func HTTPMethods() []string {
	return []string{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}
}

// Position is the canvas coordinate of a node. It is persisted but never validated.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeConfig is the per-kind configuration of a node. The set of
// implementations is closed to this package.
type NodeConfig interface {
	Kind() NodeKind
	clone() NodeConfig
}

// StartConfig configures a start node.
type StartConfig struct {
	Label string `json:"label,omitempty"`
}

// HTTPConfig configures an http node.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// CodeConfig configures a code node. The code is opaque to validation.
type CodeConfig struct {
	Code string `json:"code,omitempty"`
}

// OutputConfig configures an output node. Result is filled in after execution.
type OutputConfig struct {
	Label  string `json:"label,omitempty"`
	Result any    `json:"result,omitempty"`
}

// UnknownConfig holds the raw data of a node whose kind is not recognized.
type UnknownConfig struct {
	NodeKind NodeKind
	Raw      json.RawMessage
}

func (*StartConfig) Kind() NodeKind  { return NodeKindStart }
func (*HTTPConfig) Kind() NodeKind   { return NodeKindHTTP }
func (*CodeConfig) Kind() NodeKind   { return NodeKindCode }
func (*OutputConfig) Kind() NodeKind { return NodeKindOutput }
func (u *UnknownConfig) Kind() NodeKind {
	return u.NodeKind
}

func (c *StartConfig) clone() NodeConfig {
	cp := *c

	return &cp
}

func (c *HTTPConfig) clone() NodeConfig {
	cp := *c
	cp.Headers = maps.Clone(c.Headers)
	cp.Query = maps.Clone(c.Query)

	return &cp
}

func (c *CodeConfig) clone() NodeConfig {
	cp := *c

	return &cp
}

func (c *OutputConfig) clone() NodeConfig {
	cp := *c

	return &cp
}

func (u *UnknownConfig) clone() NodeConfig {
	cp := *u
	cp.Raw = append(json.RawMessage(nil), u.Raw...)

	return &cp
}

// DefaultConfig returns the configuration a freshly added node of kind starts with.
func DefaultConfig(kind NodeKind) NodeConfig {
	switch kind {
	case NodeKindStart:
		return &StartConfig{Label: string(kind)}
	case NodeKindHTTP:
		return &HTTPConfig{URL: "", Method: MethodGet}
	case NodeKindCode:
		return &CodeConfig{}
	case NodeKindOutput:
		return &OutputConfig{Label: string(kind)}
	default:
		return &UnknownConfig{NodeKind: kind, Raw: json.RawMessage("{}")}
	}
}

// Node is a vertex in the workflow graph.
type Node struct {
	ID       string     `json:"id"       validate:"required"`
	Kind     NodeKind   `json:"type"     validate:"required"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"data"`
}

// NewNode builds a node with the default configuration for kind.
func NewNode(id string, kind NodeKind, position Position) Node {
	return Node{ID: id, Kind: kind, Position: position, Config: DefaultConfig(kind)}
}

// Clone returns a deep copy of the node. Body and Result values are shared.
func (n Node) Clone() Node {
	if n.Config != nil {
		n.Config = n.Config.clone()
	}

	return n
}

// Start returns the node's start configuration when it is a start node.
func (n Node) Start() (*StartConfig, bool) {
	c, ok := n.Config.(*StartConfig)

	return c, ok && n.Kind == NodeKindStart
}

// HTTP returns the node's http configuration when it is an http node.
func (n Node) HTTP() (*HTTPConfig, bool) {
	c, ok := n.Config.(*HTTPConfig)

	return c, ok && n.Kind == NodeKindHTTP
}

// Code returns the node's code configuration when it is a code node.
func (n Node) Code() (*CodeConfig, bool) {
	c, ok := n.Config.(*CodeConfig)

	return c, ok && n.Kind == NodeKindCode
}

// Output returns the node's output configuration when it is an output node.
func (n Node) Output() (*OutputConfig, bool) {
	c, ok := n.Config.(*OutputConfig)

	return c, ok && n.Kind == NodeKindOutput
}

func IsStartNode(n Node) bool  { return n.Kind == NodeKindStart }
func IsHTTPNode(n Node) bool   { return n.Kind == NodeKindHTTP }
func IsCodeNode(n Node) bool   { return n.Kind == NodeKindCode }
func IsOutputNode(n Node) bool { return n.Kind == NodeKindOutput }

type nodeJSON struct {
	ID       string          `json:"id"`
	Kind     NodeKind        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the node in the canvas wire shape.
func (n Node) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch c := n.Config.(type) {
	case nil:
		data = []byte("{}")
	case *UnknownConfig:
		data = c.Raw
	default:
		data, err = json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("failed to encode data of node %s: %w", n.ID, err)
		}
	}

	return json.Marshal(nodeJSON{ID: n.ID, Kind: n.Kind, Position: n.Position, Data: data})
}

// UnmarshalJSON decodes the canvas wire shape, parsing data into the variant named by type.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	config, err := DecodeConfig(raw.Kind, raw.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	*n = Node{ID: raw.ID, Kind: raw.Kind, Position: raw.Position, Config: config}

	return nil
}

// DecodeConfig parses raw node data into the configuration variant for kind.
// Empty or null data yields the zero configuration of that kind.
func DecodeConfig(kind NodeKind, data json.RawMessage) (NodeConfig, error) {
	var config NodeConfig

	switch kind {
	case NodeKindStart:
		config = &StartConfig{}
	case NodeKindHTTP:
		config = &HTTPConfig{}
	case NodeKindCode:
		config = &CodeConfig{}
	case NodeKindOutput:
		config = &OutputConfig{}
	default:
		raw := data
		if len(raw) == 0 {
			raw = json.RawMessage("{}")
		}

		return &UnknownConfig{NodeKind: kind, Raw: append(json.RawMessage(nil), raw...)}, nil
	}

	if len(data) == 0 || string(data) == "null" {
		return config, nil
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", kind, err)
	}

	return config, nil
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"     validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// EdgeID returns the conventional id of the edge from source to target.
func EdgeID(source, target string) string {
	return source + "-" + target
}
