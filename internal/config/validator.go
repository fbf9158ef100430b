// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateAgents(cfg, errs)
	v.validateWorktree(cfg, errs)
	v.validateStartQueue(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateAgents(cfg *Config, errs *ValidationError) {
	if len(cfg.Agents) == 0 {
		errs.Add("agents", "at least one agent must be configured")
		return
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for i, a := range cfg.Agents {
		if a.ID == "" {
			errs.Add(fmt.Sprintf("agents[%d].id", i), "must not be empty")
			continue
		}
		if seen[a.ID] {
			errs.Add(fmt.Sprintf("agents[%d].id", i), fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		seen[a.ID] = true
		if a.Command == "" {
			errs.Add(fmt.Sprintf("agents[%d].command", i), "must not be empty")
		}
	}
}

func (v *Validator) validateWorktree(cfg *Config, errs *ValidationError) {
	if cfg.Worktree.MaxAvailablePerRepo < 0 {
		errs.Add("worktree.max_available_per_repo", "must not be negative")
	}
}

func (v *Validator) validateStartQueue(cfg *Config, errs *ValidationError) {
	if cfg.StartQueue.StartupTimeoutMs < 0 {
		errs.Add("start_queue.startup_timeout_ms", "must not be negative")
	}
	if cfg.StartQueue.PostSignalDelayMs < 0 {
		errs.Add("start_queue.post_signal_delay_ms", "must not be negative")
	}
}
