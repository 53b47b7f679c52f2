package adf

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Flatten はノード木をプレーンテキストに変換する。
// ブロック要素は改行で区切り、箇条書きは "- "、番号付きリストは "1. " を先頭に付ける。
// コードブロックの中身は加工しない。前後の空白は取り除く。
func Flatten(n Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(render(n))
}

// FlattenRaw はJSONを解析して平坦化する。
func FlattenRaw(raw json.RawMessage) (string, error) {
	n, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Flatten(n), nil
}

func render(n Node) string {
	switch v := n.(type) {
	case Text:
		return v.Text
	case HardBreak:
		return "\n"
	case Mention:
		return v.Text
	case Paragraph:
		return inline(v.Children)
	case Heading:
		return inline(v.Children)
	case CodeBlock:
		return inline(v.Children)
	case Doc:
		return blocks(v.Children)
	case ListItem:
		return blocks(v.Children)
	case Blockquote:
		return prefixLines(blocks(v.Children), "> ", "> ")
	case BulletList:
		lines := make([]string, 0, len(v.Items))
		for _, item := range v.Items {
			lines = append(lines, prefixLines(render(item), "- ", "  "))
		}
		return strings.Join(lines, "\n")
	case OrderedList:
		start := v.Start
		if start < 1 {
			start = 1
		}
		lines := make([]string, 0, len(v.Items))
		for i, item := range v.Items {
			marker := fmt.Sprintf("%d. ", start+i)
			lines = append(lines, prefixLines(render(item), marker, strings.Repeat(" ", len(marker))))
		}
		return strings.Join(lines, "\n")
	case Unknown:
		if hasBlock(v.Children) {
			return blocks(v.Children)
		}
		return v.Text + inline(v.Children)
	default:
		return ""
	}
}

// inline は子を区切りなしで連結する。
func inline(children []Node) string {
	var b strings.Builder
	for _, c := range children {
		b.WriteString(render(c))
	}
	return b.String()
}

// blocks は空でない子を改行で連結する。
func blocks(children []Node) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		if s := render(c); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// prefixLines は1行目にfirst、2行目以降にrestを付ける。
func prefixLines(s, first, rest string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = first + lines[i]
		} else {
			lines[i] = rest + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func hasBlock(children []Node) bool {
	for _, c := range children {
		switch c.(type) {
		case Paragraph, Heading, BulletList, OrderedList, ListItem, CodeBlock, Blockquote, Doc:
			return true
		}
	}
	return false
}
