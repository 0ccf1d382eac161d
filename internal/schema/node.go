// Package schema models the nested JSON-Schema-like documents datasets are
// described with, and flattens them into the ordered field lists the spec
// compiler consumes.
//
// Property order is significant: column indices downstream are assigned in
// flattened-field order, so the document preserves the insertion order of
// properties through decode, encode and traversal. A plain map cannot give
// that guarantee, which is why Properties carries its own JSON codec.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for schema document decoding.
var (
	// ErrNotAnObject is returned when a schema node is not a JSON object.
	ErrNotAnObject = errors.New("schema node must be a JSON object")
)

type (
	// Node is one node of a schema document: an object with named properties,
	// an array with an item schema, or a primitive leaf. ArrivalFormat and
	// DataType are storage-type hints carried through to spec compilation.
	Node struct {
		Type          string     `json:"type"`
		Properties    Properties `json:"properties,omitempty"`
		Items         *Node      `json:"items,omitempty"`
		ArrivalFormat string     `json:"arrival_format,omitempty"`
		DataType      string     `json:"data_type,omitempty"`
		IsDeleted     bool       `json:"is_deleted,omitempty"`
	}

	// Properties is an ordered list of named child nodes.
	Properties []Property

	// Property is one named child of an object node.
	Property struct {
		Key  string
		Node *Node
	}
)

// Get returns the child node for key, or nil when absent.
func (p Properties) Get(key string) *Node {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Node
		}
	}

	return nil
}

// UnmarshalJSON decodes a schema node, preserving property order.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode schema node: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotAnObject
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode schema node key: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode schema node: unexpected token %v", keyTok)
		}

		switch key {
		case "type":
			if err := dec.Decode(&n.Type); err != nil {
				return fmt.Errorf("decode schema type: %w", err)
			}
		case "properties":
			if err := dec.Decode(&n.Properties); err != nil {
				return fmt.Errorf("decode schema properties: %w", err)
			}
		case "items":
			n.Items = &Node{}
			if err := dec.Decode(n.Items); err != nil {
				return fmt.Errorf("decode schema items: %w", err)
			}
		case "arrival_format":
			if err := dec.Decode(&n.ArrivalFormat); err != nil {
				return fmt.Errorf("decode arrival_format: %w", err)
			}
		case "data_type":
			if err := dec.Decode(&n.DataType); err != nil {
				return fmt.Errorf("decode data_type: %w", err)
			}
		case "is_deleted":
			if err := dec.Decode(&n.IsDeleted); err != nil {
				return fmt.Errorf("decode is_deleted: %w", err)
			}
		default:
			// Unknown keys (required, additionalProperties, ...) are allowed
			// and ignored.
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return fmt.Errorf("decode schema node %q: %w", key, err)
			}
		}
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode schema node: %w", err)
	}

	return nil
}

// MarshalJSON encodes the node with properties in their original order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	buf.WriteString(`"type":`)
	writeJSONString(&buf, n.Type)

	if len(n.Properties) > 0 {
		buf.WriteString(`,"properties":`)

		props, err := n.Properties.MarshalJSON()
		if err != nil {
			return nil, err
		}

		buf.Write(props)
	}

	if n.Items != nil {
		buf.WriteString(`,"items":`)

		items, err := n.Items.MarshalJSON()
		if err != nil {
			return nil, err
		}

		buf.Write(items)
	}

	if n.ArrivalFormat != "" {
		buf.WriteString(`,"arrival_format":`)
		writeJSONString(&buf, n.ArrivalFormat)
	}

	if n.DataType != "" {
		buf.WriteString(`,"data_type":`)
		writeJSONString(&buf, n.DataType)
	}

	if n.IsDeleted {
		buf.WriteString(`,"is_deleted":true`)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of child schemas, preserving key order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotAnObject
	}

	*p = (*p)[:0]

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode property key: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("decode properties: unexpected token %v", keyTok)
		}

		child := &Node{}
		if err := dec.Decode(child); err != nil {
			return fmt.Errorf("decode property %q: %w", key, err)
		}

		*p = append(*p, Property{Key: key, Node: child})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}

	return nil
}

// MarshalJSON encodes the properties as an object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}

		writeJSONString(&buf, prop.Key)
		buf.WriteByte(':')

		node, err := prop.Node.MarshalJSON()
		if err != nil {
			return nil, err
		}

		buf.Write(node)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}
