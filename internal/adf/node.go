// Package adf はJiraのAtlassian Document Format（ADF）で表現されたリッチテキストを
// 木構造として読み込み、プレーンテキストに平坦化する。
package adf

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node はADF木のノード。以下の具象型のいずれか。
type Node interface {
	node()
}

// Doc は文書のルート。
type Doc struct{ Children []Node }

// Paragraph は段落。
type Paragraph struct{ Children []Node }

// Heading は見出し。平坦化では段落と同じ扱い。
type Heading struct {
	Level    int
	Children []Node
}

// BulletList は箇条書きリスト。
type BulletList struct{ Items []Node }

// OrderedList は番号付きリスト。Startは先頭の番号（未指定は1）。
type OrderedList struct {
	Start int
	Items []Node
}

// ListItem はリストの1項目。
type ListItem struct{ Children []Node }

// CodeBlock はコードブロック。中身はそのまま出力する。
type CodeBlock struct {
	Language string
	Children []Node
}

// Blockquote は引用。
type Blockquote struct{ Children []Node }

// Text は文字列。
type Text struct{ Text string }

// HardBreak は段落内の改行。
type HardBreak struct{}

// Mention はユーザーへのメンション。Textは表示名（"@Alice" など）。
type Mention struct {
	AccountID string
	Text      string
}

// Unknown は未対応のノード。子は通常通り平坦化する。
type Unknown struct {
	Type     string
	Text     string
	Children []Node
}

func (Doc) node()         {}
func (Paragraph) node()   {}
func (Heading) node()     {}
func (BulletList) node()  {}
func (OrderedList) node() {}
func (ListItem) node()    {}
func (CodeBlock) node()   {}
func (Blockquote) node()  {}
func (Text) node()        {}
func (HardBreak) node()   {}
func (Mention) node()     {}
func (Unknown) node()     {}

// rawNode はADFのJSON表現。
type rawNode struct {
	Type    string         `json:"type"`
	Text    string         `json:"text"`
	Attrs   map[string]any `json:"attrs"`
	Content []rawNode      `json:"content"`
}

// Parse はコメント本文のJSONをノード木に変換する。
// API v2形式などで本文がJSON文字列の場合は1つのTextノードを返す。
// nullまたは空の場合はnilを返す。
func Parse(raw json.RawMessage) (Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("コメント文字列のデコードに失敗しました: %w", err)
		}
		return Text{Text: s}, nil
	}

	var root rawNode
	if err := json.Unmarshal(trimmed, &root); err != nil {
		return nil, fmt.Errorf("ADFのデコードに失敗しました: %w", err)
	}
	return convert(root), nil
}

// IsPlainString は本文がADFではなくJSON文字列かどうかを返す。
func IsPlainString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

func convert(r rawNode) Node {
	children := convertAll(r.Content)
	switch r.Type {
	case "doc":
		return Doc{Children: children}
	case "paragraph":
		return Paragraph{Children: children}
	case "heading":
		return Heading{Level: intAttr(r.Attrs, "level", 1), Children: children}
	case "bulletList":
		return BulletList{Items: children}
	case "orderedList":
		return OrderedList{Start: intAttr(r.Attrs, "order", 1), Items: children}
	case "listItem":
		return ListItem{Children: children}
	case "codeBlock":
		return CodeBlock{Language: stringAttr(r.Attrs, "language"), Children: children}
	case "blockquote":
		return Blockquote{Children: children}
	case "text":
		return Text{Text: r.Text}
	case "hardBreak":
		return HardBreak{}
	case "mention":
		return Mention{AccountID: stringAttr(r.Attrs, "id"), Text: stringAttr(r.Attrs, "text")}
	default:
		return Unknown{Type: r.Type, Text: r.Text, Children: children}
	}
}

func convertAll(raws []rawNode) []Node {
	if len(raws) == 0 {
		return nil
	}
	nodes := make([]Node, 0, len(raws))
	for _, r := range raws {
		nodes = append(nodes, convert(r))
	}
	return nodes
}

func stringAttr(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

// intAttr はJSON数値（float64）として届く属性を整数で返す。
func intAttr(attrs map[string]any, key string, def int) int {
	if v, ok := attrs[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}
