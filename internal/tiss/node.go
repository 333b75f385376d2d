package tiss

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Node is a generic view over a decoded XML element. Child elements are keyed
// by their tag name with the ANS namespace prefix stripped. A child appears as
// a string when the element held only character data, as a Node when it held
// nested elements, and as a []interface{} when the tag repeated.
type Node map[string]interface{}

// namespacePrefix is the fixed TISS namespace prefix stripped from every tag
// name before structural interpretation.
const namespacePrefix = "ans:"

// Decode parses raw XML into a one-entry Node mapping the root tag name to its
// decoded content. A syntax error in the XML itself is returned as an error;
// there is no tolerance at this level.
func Decode(data []byte) (Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// TISS bundles occasionally declare ISO-8859-1; the upload layer re-decodes
	// those to UTF-8 before parsing, so a pass-through reader is enough here.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("tiss: document has no root element")
		}
		if err != nil {
			return nil, fmt.Errorf("tiss: malformed xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		value, err := decodeElement(dec, start)
		if err != nil {
			return nil, fmt.Errorf("tiss: malformed xml: %w", err)
		}
		return Node{elementName(start): value}, nil
	}
}

// decodeElement consumes tokens until the matching EndElement and returns the
// element's value: a trimmed string for leaf elements, a Node for containers.
func decodeElement(dec *xml.Decoder, start xml.StartElement) (interface{}, error) {
	children := Node{}
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			value, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			addChild(children, elementName(t), value)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) > 0 {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}

// addChild inserts a child value, promoting repeated tags to a list.
func addChild(n Node, name string, value interface{}) {
	existing, ok := n[name]
	if !ok {
		n[name] = value
		return
	}
	if list, ok := existing.([]interface{}); ok {
		n[name] = append(list, value)
		return
	}
	n[name] = []interface{}{existing, value}
}

func elementName(start xml.StartElement) string {
	return strings.TrimPrefix(start.Name.Local, namespacePrefix)
}

// Child walks the path and returns the Node found there, or nil when any
// intermediate step is missing or not a container.
func (n Node) Child(path ...string) Node {
	current := n
	for _, key := range path {
		if current == nil {
			return nil
		}
		next, ok := current[key].(Node)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// Text returns the string at the path, or "" when absent. A container at the
// path also yields "".
func (n Node) Text(path ...string) string {
	if len(path) == 0 {
		return ""
	}
	parent := n.Child(path[:len(path)-1]...)
	if parent == nil {
		return ""
	}
	s, _ := parent[path[len(path)-1]].(string)
	return s
}

// List returns the nodes at the path normalized into a slice: a repeated tag
// yields every occurrence, a single occurrence is wrapped into a one-element
// slice, and an absent path yields nil. Non-container occurrences are skipped.
func (n Node) List(path ...string) []Node {
	if len(path) == 0 {
		return nil
	}
	parent := n.Child(path[:len(path)-1]...)
	if parent == nil {
		return nil
	}
	switch v := parent[path[len(path)-1]].(type) {
	case Node:
		return []Node{v}
	case []interface{}:
		var out []Node
		for _, item := range v {
			if node, ok := item.(Node); ok {
				out = append(out, node)
			}
		}
		return out
	default:
		return nil
	}
}

// Keys returns the node's child tag names in sorted order.
func (n Node) Keys() []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float coerces the text at the path to a float64, defaulting to zero on a
// missing or non-numeric value. Downstream consolidation and totals arithmetic
// rely on this never producing NaN.
func (n Node) Float(path ...string) float64 {
	s := strings.TrimSpace(n.Text(path...))
	if s == "" {
		return 0
	}
	// TISS files in the wild use both "." and "," as the decimal separator.
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// Int coerces the text at the path to an int with the same zero default as
// Float.
func (n Node) Int(path ...string) int {
	s := strings.TrimSpace(n.Text(path...))
	if s == "" {
		return 0
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		// Quantities occasionally arrive as "2.0".
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return i
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Time parses the text at the path into a time. Absence or an unparseable
// value stays absent (nil) rather than defaulting.
func (n Node) Time(path ...string) *time.Time {
	s := strings.TrimSpace(n.Text(path...))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
