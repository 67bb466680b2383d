package logstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// forEachLine calls fn for every line of r with surrounding whitespace
// trimmed, skipping blank lines. Lines have no length limit.
func forEachLine(r io.Reader, fn func(line []byte)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			fn(trimmed)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// countMessages counts the non-blank lines of r.
func countMessages(r io.Reader) (int, error) {
	count := 0
	err := forEachLine(r, func([]byte) { count++ })
	return count, err
}

// parseMessages decodes every valid JSON line of r in order. Invalid lines are dropped.
func parseMessages(r io.Reader) ([]Message, error) {
	messages := []Message{}
	err := forEachLine(r, func(line []byte) {
		if !json.Valid(line) {
			return
		}
		messages = append(messages, Message(bytes.Clone(line)))
	})
	return messages, err
}
