package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
)

const maxLine = 16 << 20

// openInput opens path, or stdin for "-" or no argument.
func openInput(args []string, stdin io.Reader) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// line is one non-empty input line: either a record envelope or a bare trail.
type line struct {
	number int
	data   []byte
}

func (l line) isEnvelope() bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(l.data, &probe); err != nil {
		return false
	}
	_, ok := probe["trail"]
	return ok
}

// eachLine calls fn for every non-blank line of r.
func eachLine(r io.Reader, fn func(line) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	n := 0
	for sc.Scan() {
		n++
		data := sc.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		if err := fn(line{number: n, data: append([]byte(nil), data...)}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// decodeTrail returns the scope carried by l, unwrapping an envelope when present.
func decodeTrail(l line) (*scope.Scope, *audit.Record, error) {
	if l.isEnvelope() {
		record, err := audit.ParseRecord(l.data)
		if err != nil {
			return nil, nil, err
		}
		trail, err := record.Trail()
		if err != nil {
			return nil, nil, err
		}
		return trail, &record, nil
	}
	trail := new(scope.Scope)
	if err := json.Unmarshal(l.data, trail); err != nil {
		return nil, nil, fmt.Errorf("decode trail: %w", err)
	}
	return trail, nil, nil
}
