// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	isaacClaudePattern = regexp.MustCompile(`\bisaac claude\b`)
	llmAgentPattern    = regexp.MustCompile(`\bllm agent claude\b`)
	resumeFlagPattern  = regexp.MustCompile(`--resume\s+\S+`)
)

// NormalizeAgentCommand rewrites legacy command-line prefixes for the
// claude agent down to the bare binary name, when no isaac wrapper is
// present. It is a no-op for any other agent, or when hasIsaac is
// true, and is idempotent: applying it twice yields the same result
// as applying it once.
func NormalizeAgentCommand(cmd, agentID string, hasIsaac bool) string {
	if agentID != ClaudeAgentID || hasIsaac {
		return cmd
	}
	cmd = isaacClaudePattern.ReplaceAllString(cmd, "claude")
	cmd = llmAgentPattern.ReplaceAllString(cmd, "claude")
	return cmd
}

// BuildRestartCommand normalizes cmd, strips every pre-existing
// --resume flag (stale tokens must go even with no fresh id supplied),
// then injects exactly one --resume <claudeSessionID> right after the
// command verb if claudeSessionID is a valid UUID. The result never
// contains more than one --resume.
func BuildRestartCommand(cmd, agentID, claudeSessionID string, hasIsaac bool) string {
	cmd = NormalizeAgentCommand(cmd, agentID, hasIsaac)

	if agentID != ClaudeAgentID {
		return cmd
	}

	cmd = strings.TrimSpace(resumeFlagPattern.ReplaceAllString(cmd, ""))
	cmd = collapseSpaces(cmd)

	if claudeSessionID == "" {
		return cmd
	}
	if _, err := uuid.Parse(claudeSessionID); err != nil {
		return cmd
	}

	return injectAfterVerb(cmd, "--resume "+claudeSessionID)
}

// InjectPluginDir injects --plugin-dir <path> after the command verb
// for the claude agent, when pluginDir is non-empty and the command
// does not already reference --plugin-dir.
func InjectPluginDir(cmd, agentID, pluginDir string) string {
	if agentID != ClaudeAgentID || pluginDir == "" {
		return cmd
	}
	if strings.Contains(cmd, "--plugin-dir") {
		return cmd
	}
	return injectAfterVerb(cmd, "--plugin-dir "+pluginDir)
}

// injectAfterVerb inserts extra right after the first whitespace-
// delimited token of cmd (the command verb, e.g. "claude").
func injectAfterVerb(cmd, extra string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return extra
	}
	idx := strings.IndexByte(cmd, ' ')
	if idx < 0 {
		return cmd + " " + extra
	}
	return cmd[:idx] + " " + extra + cmd[idx:]
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
