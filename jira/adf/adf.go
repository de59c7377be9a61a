/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package adf models the subset of the Atlassian Document Format that Jira
// uses for issue descriptions and comments.
//
// Only the node kinds the agent reads or writes are named here. Unknown node
// kinds still decode into a Node and are carried along untouched, so callers
// that walk a document can treat them as inert.
package adf

import "strings"

// Node types recognized by this package.
const (
	TypeDoc        = "doc"
	TypeHeading    = "heading"
	TypeParagraph  = "paragraph"
	TypeBulletList = "bulletList"
	TypeListItem   = "listItem"
	TypeText       = "text"
)

// Node is a single ADF node. Documents, blocks and inline text all share this
// shape; which fields are populated depends on Type.
type Node struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark decorates a text node (strong, link, textColor, ...).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// PlainText concatenates the text of n and all of its inline descendants.
// A nil node yields the empty string.
func (n *Node) PlainText() string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	n.appendText(&sb)
	return sb.String()
}

func (n *Node) appendText(sb *strings.Builder) {
	if n == nil {
		return
	}
	if n.Type == TypeText {
		sb.WriteString(n.Text)
		return
	}
	for _, c := range n.Content {
		c.appendText(sb)
	}
}

// FirstChild returns the first direct child of n with the given type, or nil.
func (n *Node) FirstChild(typ string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Content {
		if c != nil && c.Type == typ {
			return c
		}
	}
	return nil
}
