package confdoc

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-yaml/lexer"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/token"

	"shardproxy/pkg/proxyerr"
)

const (
	// RootDepth is the depth of pool names.
	RootDepth = 1
	// MaxDepth is the depth of directive keys and their values.
	MaxDepth = RootDepth + 1
)

// Validate runs the document, token and structure passes in that order and
// returns the first failure. Each pass reads src from the beginning.
func Validate(name string, src []byte) error {
	if err := ValidateDocument(name, src); err != nil {
		return err
	}
	if err := ValidateTokens(name, src); err != nil {
		return err
	}
	return ValidateStructure(name, src)
}

// ValidateDocument fails unless src holds exactly one document.
func ValidateDocument(name string, src []byte) error {
	file, err := parser.ParseBytes(src, 0, parser.AllowDuplicateMapKey())
	if err != nil {
		return fmt.Errorf("%w: '%s': %w", proxyerr.ErrLoad, name, err)
	}

	count := 0
	for _, doc := range file.Docs {
		if doc != nil && doc.Body != nil {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("%w: '%s' must contain only 1 document; found %d documents", proxyerr.ErrLoad, name, count)
	}
	return nil
}

var allowedTokens = map[token.Type]struct{}{
	token.SequenceEntryType: {},
	token.MappingKeyType:    {},
	token.MappingValueType:  {},
	token.CommentType:       {},
	token.SpaceType:         {},

	token.StringType:        {},
	token.SingleQuoteType:   {},
	token.DoubleQuoteType:   {},
	token.LiteralType:       {},
	token.FoldedType:        {},
	token.IntegerType:       {},
	token.BinaryIntegerType: {},
	token.OctetIntegerType:  {},
	token.HexIntegerType:    {},
	token.FloatType:         {},
	token.BoolType:          {},
	token.NullType:          {},
	token.InfinityType:      {},
	token.NanType:           {},
}

// ValidateTokens rejects every lexical token outside the block-style
// allow-list: directives, document markers, flow collections, anchors,
// aliases, tags and merge keys.
func ValidateTokens(name string, src []byte) error {
	for _, tk := range lexer.Tokenize(string(src)) {
		if _, ok := allowedTokens[tk.Type]; ok {
			continue
		}
		line := 0
		if tk.Position != nil {
			line = tk.Position.Line
		}
		return fmt.Errorf("%w: '%s' line %d: %s token %q is disallowed", proxyerr.ErrLoad, name, line, tk.Type, tk.Value)
	}

	slog.Debug("conf has valid tokens", "file", name)
	return nil
}

// ValidateStructure checks the shape of the document against the
// pool -> directive -> value tree.
func ValidateStructure(name string, src []byte) error {
	events, err := Events(src)
	if err != nil {
		return err
	}

	var (
		depth int
		seq   bool // the current pool has a sequence-valued directive
		inSeq bool
		count [MaxDepth + 1]int
	)

	for _, ev := range events {
		switch ev.Type {
		case StreamStart, StreamEnd, DocumentStart, DocumentEnd:

		case MappingStart:
			if depth == RootDepth && count[depth] != 1 {
				return structErr(name, ev, "has more than one \"key:value\" at depth %d", depth)
			}
			if depth >= MaxDepth {
				return structErr(name, ev, "has a depth greater than %d", MaxDepth)
			}
			depth++

		case MappingEnd:
			if depth == MaxDepth {
				if !seq {
					return structErr(name, ev, "missing sequence directive at depth %d", depth)
				}
				seq = false
			}
			depth--
			count[depth] = 0

		case SequenceStart:
			switch {
			case inSeq:
				return structErr(name, ev, "has a nested sequence at depth %d", depth)
			case depth != MaxDepth:
				return structErr(name, ev, "has sequence at depth %d instead of %d", depth, MaxDepth)
			case count[depth] != 1:
				return structErr(name, ev, "has invalid \"key:value\" at depth %d", depth)
			}
			seq, inSeq = true, true

		case SequenceEnd:
			inSeq = false
			count[depth] = 0

		case Scalar:
			switch {
			case depth == 0:
				return structErr(name, ev, "has invalid empty \"key:\" at depth %d", depth)
			case depth == RootDepth && count[depth] != 0:
				return structErr(name, ev, "has invalid mapping \"key:\" at depth %d", depth)
			case depth == MaxDepth && count[depth] == 2:
				// a complete "key: value", start the next pair
				count[depth] = 0
			}
			count[depth]++
		}
	}

	return nil
}

func structErr(name string, ev Event, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: '%s' line %d: %s", proxyerr.ErrLoad, name, ev.Line, msg)
}
