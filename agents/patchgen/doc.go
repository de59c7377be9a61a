/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package patchgen asks a generative model for a corrected version of a
// single source file.
//
// The provider is chosen from the model name:
//   - Models starting with "claude-" use Anthropic's Messages API
//   - Models starting with "gpt-", "o1", "o3" or "o4" use OpenAI Chat Completions
//   - Models starting with "gemini-" use the Gemini API
//
// Every provider receives the same two prompts: a fixed system instruction,
// and a user instruction naming the file, its full content and the numbered
// issues to resolve. The model answers with the full replacement content.
package patchgen
