package scope

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrBadFormat is the panic value of Logf when the template does not match its operands.
	ErrBadFormat = errors.New("audit: malformed log format")
	// ErrCycle is the panic value of AppendScope when the child already contains the parent.
	ErrCycle = errors.New("audit: scope appended into its own subtree")
	// ErrMalformed is returned when decoding a document that does not have the scope shape.
	ErrMalformed = errors.New("audit: malformed scope document")
)

// now is swapped in tests that need fixed wall-clock timestamps.
var now = time.Now

// Event is one entry of a scope: either a Log or a nested *Scope.
// The set of variants is closed; handle it with a type switch.
type Event interface {
	isEvent()
}

// Log is a leaf entry holding one formatted message.
type Log struct {
	time string
	name string
}

func (Log) isEvent() {}

// Scope is the audit trail of one unit of work.
type Scope struct {
	time     string
	name     string
	duration *time.Duration
	events   []Event

	echo *slog.Logger
}

func (*Scope) isEvent() {}

// Option configures a Scope at construction.
type Option func(*Scope)

// WithEcho mirrors every logged line to logger at debug level. Children created through
// Segment and FanOut inherit the logger. The echo is never part of the rendered record.
func WithEcho(logger *slog.Logger) Option {
	return func(s *Scope) {
		s.echo = logger
	}
}

// New opens a scope named name, stamped with the current time.
func New(name string, opts ...Option) *Scope {
	s := &Scope{
		time:   timestamp(),
		name:   name,
		events: []Event{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// child opens a scope that shares the receiver's echo logger. It is not appended.
func (s *Scope) child(name string) *Scope {
	return New(name, WithEcho(s.echo))
}

// AppendScope appends child as a nested event. Children are not validated: incomplete,
// empty or same-named scopes are all accepted. A nil child is ignored.
//
// Appending a scope into its own subtree panics with ErrCycle.
func (s *Scope) AppendScope(child *Scope) {
	if child == nil {
		return
	}
	if child == s || child.contains(s) {
		panic(fmt.Errorf("%w: %q into %q", ErrCycle, child.name, s.name))
	}
	s.events = append(s.events, child)
}

// LogEvent appends a leaf entry carrying message, stamped with the current time.
func (s *Scope) LogEvent(message string) {
	s.events = append(s.events, Log{time: timestamp(), name: message})
	if s.echo != nil {
		s.echo.Debug("audit event", "scope", s.name, "message", message)
	}
}

// Logf formats according to a format specifier and appends the result with LogEvent.
// A template that does not match its operands is a programmer error and panics with
// ErrBadFormat.
func (s *Scope) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if badFormat(format, msg, args) {
		panic(fmt.Errorf("%w: %q", ErrBadFormat, format))
	}
	s.LogEvent(msg)
}

// badFormat reports whether fmt inserted error markers ("%!verb(...)", "%!(EXTRA ...)")
// that did not come from the template's literal "%%!" or from the operands themselves.
// An operand referenced by several verbs contributes its markers once per verb.
func badFormat(format, msg string, args []any) bool {
	got := strings.Count(msg, "%!")
	if got == 0 {
		return false
	}
	want := strings.Count(format, "%%!")
	uses := verbUses(format, len(args))
	for i, a := range args {
		if uses[i] > 0 {
			want += uses[i] * strings.Count(fmt.Sprint(a), "%!")
		}
	}
	return got > want
}

// verbUses counts, per operand, the verbs that print it. It follows fmt's operand
// numbering: "[n]" indexes reset the cursor, "*" width or precision consumes an operand
// without printing it. References past the last operand are ignored.
func verbUses(format string, nargs int) []int {
	uses := make([]int, nargs)
	arg := 0
	index := func(i int) (int, int) {
		if i >= len(format) || format[i] != '[' {
			return i, arg
		}
		end := strings.IndexByte(format[i:], ']')
		if end < 0 {
			return i, arg
		}
		n, err := strconv.Atoi(format[i+1 : i+end])
		if err != nil || n < 1 {
			return i + end + 1, arg
		}
		return i + end + 1, n - 1
	}
	star := func(i int) int {
		i, arg = index(i)
		if i < len(format) && format[i] == '*' {
			arg++
			return i + 1
		}
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		return i
	}

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i < len(format) && format[i] == '%' {
			continue
		}
		for i < len(format) && strings.IndexByte("+-# 0", format[i]) >= 0 {
			i++
		}
		i = star(i)
		if i < len(format) && format[i] == '.' {
			i = star(i + 1)
		}
		i, arg = index(i)
		if i >= len(format) {
			break
		}
		if arg < nargs {
			uses[arg]++
		}
		arg++
	}
	return uses
}

func (s *Scope) setDuration(d time.Duration) {
	s.duration = &d
}

func (s *Scope) contains(target *Scope) bool {
	for _, ev := range s.events {
		if c, ok := ev.(*Scope); ok {
			if c == target || c.contains(target) {
				return true
			}
		}
	}
	return false
}

func timestamp() string {
	return now().UTC().Format(time.RFC3339Nano)
}
