// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - The --json envelope shared by register, whoami, topics,
// health and config show. Exactly one document is printed per command.
package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse wraps a command's result. Error is null on success so
// scripts can test one field.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse wraps a successful result.
func NewJSONResponse(command string, data any) *JSONResponse {
	return envelope(command, data, nil)
}

// NewJSONErrorResponse wraps a failure; Data is null.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	return envelope(command, nil, err)
}

func envelope(command string, data any, err error) *JSONResponse {
	r := &JSONResponse{
		Success:   err == nil,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
	if err != nil {
		msg := err.Error()
		r.Error = &msg
	}
	return r
}

// Write prints r as indented JSON followed by a newline.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// OutputJSON runs handler. In JSON mode its result or error is printed as
// a JSONResponse; otherwise the handler prints for itself. The handler's
// error is returned either way so the exit code reflects it.
func OutputJSON(w io.Writer, jsonMode bool, command string, handler func() (any, error)) error {
	data, err := handler()
	if !jsonMode {
		return err
	}
	if err != nil {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return err
	}
	return NewJSONResponse(command, data).Write(w)
}
