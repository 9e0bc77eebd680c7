// Package confdoc checks that a pool file is written in the constrained YAML
// dialect the proxy accepts and turns it into a flat stream of structural
// events for the directive parser.
//
// The dialect is a single block-style document shaped like
//
//	pool:
//	  key: value
//	  seq:
//	    - elem1
//	    - elem2
//
// with no flow collections, anchors, aliases, tags or document markers.
package confdoc

import (
	"fmt"

	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/token"

	"shardproxy/pkg/proxyerr"
)

type EventType int

const (
	StreamStart EventType = iota
	StreamEnd
	DocumentStart
	DocumentEnd
	MappingStart
	MappingEnd
	SequenceStart
	SequenceEnd
	Scalar
)

var eventNames = [...]string{
	StreamStart:   "stream start",
	StreamEnd:     "stream end",
	DocumentStart: "document start",
	DocumentEnd:   "document end",
	MappingStart:  "mapping start",
	MappingEnd:    "mapping end",
	SequenceStart: "sequence start",
	SequenceEnd:   "sequence end",
	Scalar:        "scalar",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(t))
	}
	return eventNames[t]
}

// Event is one structural step. Value is only set for scalars.
type Event struct {
	Type  EventType
	Value string
	Line  int
}

// Events parses src and returns its structural events in document order.
// Quoted scalars are unquoted; a key without a value yields an empty scalar.
func Events(src []byte) ([]Event, error) {
	file, err := parser.ParseBytes(src, 0, parser.AllowDuplicateMapKey())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", proxyerr.ErrLoad, err)
	}

	w := &eventWriter{}
	w.emit(StreamStart, "", 0)
	for _, doc := range file.Docs {
		if doc == nil || doc.Body == nil {
			continue
		}
		w.emit(DocumentStart, "", lineOf(doc.Body))
		if err := w.node(doc.Body); err != nil {
			return nil, err
		}
		w.emit(DocumentEnd, "", 0)
	}
	w.emit(StreamEnd, "", 0)

	return w.events, nil
}

type eventWriter struct {
	events []Event
}

func (w *eventWriter) emit(typ EventType, value string, line int) {
	w.events = append(w.events, Event{Type: typ, Value: value, Line: line})
}

func (w *eventWriter) node(n ast.Node) error {
	switch n := n.(type) {
	case nil:
		w.emit(Scalar, "", 0)
	case *ast.MappingNode:
		w.emit(MappingStart, "", lineOf(n))
		for _, v := range n.Values {
			if err := w.pair(v); err != nil {
				return err
			}
		}
		w.emit(MappingEnd, "", 0)
	case *ast.MappingValueNode:
		w.emit(MappingStart, "", lineOf(n))
		if err := w.pair(n); err != nil {
			return err
		}
		w.emit(MappingEnd, "", 0)
	case *ast.SequenceNode:
		w.emit(SequenceStart, "", lineOf(n))
		for _, v := range n.Values {
			if err := w.node(v); err != nil {
				return err
			}
		}
		w.emit(SequenceEnd, "", 0)
	case *ast.MappingKeyNode:
		return w.node(n.Value)
	case *ast.StringNode:
		w.emit(Scalar, n.Value, lineOf(n))
	case *ast.LiteralNode:
		var v string
		if n.Value != nil {
			v = n.Value.Value
		}
		w.emit(Scalar, v, lineOf(n))
	case *ast.NullNode:
		var v string
		if tk := n.GetToken(); tk != nil && tk.Type != token.ImplicitNullType {
			v = tk.Value
		}
		w.emit(Scalar, v, lineOf(n))
	case *ast.TagNode, *ast.AnchorNode, *ast.AliasNode:
		return fmt.Errorf("%w: line %d: unsupported %s node", proxyerr.ErrLoad, lineOf(n), n.Type())
	default:
		tk := n.GetToken()
		if tk == nil {
			return fmt.Errorf("%w: unsupported %s node", proxyerr.ErrLoad, n.Type())
		}
		w.emit(Scalar, tk.Value, lineOf(n))
	}
	return nil
}

func (w *eventWriter) pair(v *ast.MappingValueNode) error {
	if err := w.node(v.Key); err != nil {
		return err
	}
	return w.node(v.Value)
}

func lineOf(n ast.Node) int {
	if n == nil {
		return 0
	}
	tk := n.GetToken()
	if tk == nil || tk.Position == nil {
		return 0
	}
	return tk.Position.Line
}
