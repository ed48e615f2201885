package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ironbanner/battlecore/internal/dispatcher"
	"github.com/ironbanner/battlecore/pkg/core"
)

// maxLineSize bounds one request line.
const maxLineSize = 4 << 20

// Request is one newline-delimited command read from stdin.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is written to stdout for every request, in request order.
type Response struct {
	ID     string     `json:"id,omitempty"`
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody classifies a failed command.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error kinds.
const (
	KindValidation = dispatcher.OutcomeValidation
	KindNotFound   = dispatcher.OutcomeNotFound
	KindConflict   = dispatcher.OutcomeConflict
	KindInternal   = dispatcher.OutcomeInternal
)

// serve reads requests until EOF and answers each on out.
func serve(d *dispatcher.Dispatcher, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(out)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := enc.Encode(handleLine(d, line)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func handleLine(d *dispatcher.Dispatcher, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return failure("", &core.ValidationError{Field: "request", Reason: err.Error()})
	}
	if req.Command == "" {
		return failure(req.ID, &core.ValidationError{Field: "command", Reason: "missing"})
	}

	result, err := d.Dispatch(dispatcher.Event{
		Command:   req.Command,
		Payload:   req.Payload,
		RequestID: req.ID,
		Timestamp: time.Now(),
	})
	if err != nil {
		return failure(req.ID, err)
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func failure(id string, err error) Response {
	return Response{ID: id, Error: &ErrorBody{Kind: dispatcher.Classify(err), Message: err.Error()}}
}
