package conf

import (
	"errors"
	"fmt"

	"shardproxy/pkg/confdoc"
	"shardproxy/pkg/proxyerr"
)

// parseContext walks the event stream of an already validated document.
// args mirrors the nesting: pool name, directive key, value.
type parseContext struct {
	name   string
	events []confdoc.Event
	pos    int

	depth int
	seq   bool
	args  []string
	pool  *PoolDeclaration
	conf  *Conf
}

func parseEvents(name string, events []confdoc.Event) (*Conf, error) {
	pc := &parseContext{
		name:   name,
		events: events,
		conf:   &Conf{Filename: name},
	}
	if err := pc.begin(); err != nil {
		return nil, err
	}
	if err := pc.core(); err != nil {
		return nil, err
	}
	if err := pc.end(); err != nil {
		return nil, err
	}
	return pc.conf, nil
}

func (pc *parseContext) next() (confdoc.Event, error) {
	if pc.pos >= len(pc.events) {
		return confdoc.Event{}, fmt.Errorf("%w: '%s': unexpected end of document", proxyerr.ErrLoad, pc.name)
	}
	ev := pc.events[pc.pos]
	pc.pos++
	return ev, nil
}

func (pc *parseContext) expect(typ confdoc.EventType) error {
	ev, err := pc.next()
	if err != nil {
		return err
	}
	if ev.Type != typ {
		return fmt.Errorf("%w: '%s' line %d: expected %s, got %s", proxyerr.ErrLoad, pc.name, ev.Line, typ, ev.Type)
	}
	return nil
}

func (pc *parseContext) begin() error {
	for _, typ := range []confdoc.EventType{confdoc.StreamStart, confdoc.DocumentStart, confdoc.MappingStart} {
		if err := pc.expect(typ); err != nil {
			return err
		}
	}
	pc.depth = confdoc.RootDepth
	return nil
}

func (pc *parseContext) end() error {
	for _, typ := range []confdoc.EventType{confdoc.DocumentEnd, confdoc.StreamEnd} {
		if err := pc.expect(typ); err != nil {
			return err
		}
	}
	return nil
}

func (pc *parseContext) core() error {
	for {
		ev, err := pc.next()
		if err != nil {
			return err
		}

		switch ev.Type {
		case confdoc.MappingStart:
			pc.depth++

		case confdoc.MappingEnd:
			pc.depth--
			if pc.depth == confdoc.RootDepth {
				pc.pop()
				pc.pool = nil
			}
			if pc.depth == 0 {
				return nil
			}

		case confdoc.SequenceStart:
			pc.seq = true

		case confdoc.SequenceEnd:
			pc.pop()
			pc.seq = false

		case confdoc.Scalar:
			if err := pc.scalar(ev); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: '%s' line %d: unexpected %s", proxyerr.ErrLoad, pc.name, ev.Line, ev.Type)
		}
	}
}

func (pc *parseContext) scalar(ev confdoc.Event) error {
	if ev.Value == "" {
		return fmt.Errorf("%w: %w: '%s' line %d: invalid empty value", proxyerr.ErrDirective, proxyerr.ErrInvalidValue, pc.name, ev.Line)
	}
	pc.args = append(pc.args, ev.Value)

	switch {
	case pc.depth == confdoc.RootDepth:
		pc.pool = newPoolDeclaration(ev.Value)
		pc.conf.Pools = append(pc.conf.Pools, pc.pool)

	case pc.seq:
		// every element of a sequence goes to the handler on its own
		err := pc.handle(ev)
		pc.pop()
		return err

	case len(pc.args) == 3:
		err := pc.handle(ev)
		pc.pop()
		pc.pop()
		return err
	}
	return nil
}

// handle runs the command for the key below the top of the stack with the
// value on top.
func (pc *parseContext) handle(ev confdoc.Event) error {
	if len(pc.args) < 3 || pc.pool == nil {
		return fmt.Errorf("%w: '%s' line %d: value %q outside of a directive", proxyerr.ErrLoad, pc.name, ev.Line, ev.Value)
	}
	key, value := pc.args[len(pc.args)-2], pc.args[len(pc.args)-1]

	set, ok := commands[key]
	if !ok {
		return fmt.Errorf("%w: %w: '%s' line %d: pool %q: directive %q is unknown",
			proxyerr.ErrDirective, proxyerr.ErrUnknownDirective, pc.name, ev.Line, pc.pool.Name, key)
	}

	if err := set(pc.pool, value); err != nil {
		var f *fault
		if errors.As(err, &f) {
			return fmt.Errorf("%w: %w: '%s' line %d: pool %q: directive %q %s",
				proxyerr.ErrDirective, f.detail, pc.name, ev.Line, pc.pool.Name, key, f.reason)
		}
		return fmt.Errorf("%w: '%s' line %d: pool %q: directive %q: %w", proxyerr.ErrDirective, pc.name, ev.Line, pc.pool.Name, key, err)
	}
	return nil
}

func (pc *parseContext) pop() {
	if len(pc.args) > 0 {
		pc.args = pc.args[:len(pc.args)-1]
	}
}
