package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ReadJSONL reads one event per line. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]Event, error) {
	var events []Event
	err := scanLines(r, func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ReadCommands reads one client command per line, as a client would have
// sent them. Lines the relay would ignore are skipped and counted in
// skipped. Blank lines are not counted.
func ReadCommands(r io.Reader) (cmds []Command, skipped int, err error) {
	err = scanLines(r, func(line []byte) error {
		cmd, err := ParseCommand(line)
		if err != nil {
			skipped++
			return nil
		}
		cmds = append(cmds, cmd)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return cmds, skipped, nil
}

func scanLines(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}

// WriteJSONL writes each event on its own line. Passthrough payloads may
// contain newlines, so every event is compacted first.
func WriteJSONL(w io.Writer, events []Event) error {
	bw := bufio.NewWriter(w)
	var line bytes.Buffer
	for i, ev := range events {
		line.Reset()
		if err := json.Compact(&line, ev.Bytes()); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		line.WriteByte('\n')
		if _, err := bw.Write(line.Bytes()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
