/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adf

// Doc returns a version 1 document containing the given blocks.
func Doc(blocks ...*Node) *Node {
	return &Node{Type: TypeDoc, Version: 1, Content: blocks}
}

// Heading returns a heading block of the given level with a single text run.
func Heading(level int, text string) *Node {
	return &Node{
		Type:    TypeHeading,
		Attrs:   map[string]any{"level": level},
		Content: []*Node{Text(text)},
	}
}

// Paragraph returns a paragraph holding the given inline nodes.
func Paragraph(inline ...*Node) *Node {
	return &Node{Type: TypeParagraph, Content: inline}
}

// Text returns an unmarked text run.
func Text(s string) *Node {
	return &Node{Type: TypeText, Text: s}
}

// Link returns a text run linking to href.
func Link(s, href string) *Node {
	return &Node{
		Type: TypeText,
		Text: s,
		Marks: []Mark{{
			Type:  "link",
			Attrs: map[string]any{"href": href},
		}},
	}
}

// BulletList returns a bullet list with one paragraph item per string.
func BulletList(items ...string) *Node {
	list := &Node{Type: TypeBulletList}
	for _, item := range items {
		list.Content = append(list.Content, &Node{
			Type:    TypeListItem,
			Content: []*Node{Paragraph(Text(item))},
		})
	}
	return list
}
