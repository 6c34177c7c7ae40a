package scope

import (
	"fmt"
	"io"
	"time"
)

// String returns the indented JSON document. Use RenderIndent when the error matters.
func (s *Scope) String() string {
	data, err := s.RenderIndent()
	if err != nil {
		return fmt.Sprintf("<unrenderable audit scope: %v>", err)
	}
	return string(data)
}

// WriteTree writes a human-readable outline of the scope:
//
//	create_user  2026-10-18T09:12:01.5Z  (4.21ms)
//	├── validating a@b.c
//	├── persist  (3.9ms)
//	│   └── insert row
//	└── done
func (s *Scope) WriteTree(w io.Writer) error {
	tw := &treeWriter{w: w}
	tw.printf("%s  %s%s\n", s.name, s.time, durationLabel(s.duration))
	tw.events(s.events, "")
	return tw.err
}

type treeWriter struct {
	w   io.Writer
	err error
}

func (tw *treeWriter) printf(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.w, format, args...)
}

func (tw *treeWriter) events(events []Event, prefix string) {
	for i, ev := range events {
		branch, indent := "├── ", "│   "
		if i == len(events)-1 {
			branch, indent = "└── ", "    "
		}
		switch e := ev.(type) {
		case Log:
			tw.printf("%s%s%s\n", prefix, branch, e.name)
		case *Scope:
			tw.printf("%s%s%s%s\n", prefix, branch, e.name, durationLabel(e.duration))
			tw.events(e.events, prefix+indent)
		}
	}
}

func durationLabel(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("  (%s)", d.String())
}
