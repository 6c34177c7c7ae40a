package scope

import "time"

// Time invokes work exactly once and records its elapsed time on s before returning.
// The duration is recorded whether work returns a value, an error, or panics; the
// result, error and panic are passed through untouched. A later call overwrites the
// duration recorded by an earlier one.
//
// Elapsed time comes from the monotonic clock reading carried by time.Now.
func Time[T any](s *Scope, work func() (T, error)) (T, error) {
	if s == nil {
		panic("audit: Time called with nil scope")
	}
	start := time.Now()
	defer func() {
		s.setDuration(time.Since(start))
	}()
	return work()
}

// Run is Time for work that produces no value.
func Run(s *Scope, work func() error) error {
	_, err := Time(s, func() (struct{}, error) {
		return struct{}{}, work()
	})
	return err
}

// Segment opens a child scope named name, times work against it, and appends the child
// to parent. The child is appended even when work fails or panics, so the parent keeps
// whatever the segment recorded before it stopped.
func Segment(parent *Scope, name string, work func(child *Scope) error) error {
	_, err := SegmentValue(parent, name, func(child *Scope) (struct{}, error) {
		return struct{}{}, work(child)
	})
	return err
}

// SegmentValue is Segment for work that produces a value.
func SegmentValue[T any](parent *Scope, name string, work func(child *Scope) (T, error)) (T, error) {
	child := parent.child(name)
	defer parent.AppendScope(child)
	return Time(child, func() (T, error) {
		return work(child)
	})
}
