package security

import (
	"testing"
)

func TestCommentSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewCommentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "レビュー対応",
			want:  "レビュー対応",
		},
		{
			name:  "前後の空白を除去する",
			input: "  調査  \n",
			want:  "調査",
		},
		{
			name:  "タグを除去する",
			input: "<p>障害<strong>調査</strong></p>",
			want:  "障害調査",
		},
		{
			name:  "scriptタグは中身ごと除去する",
			input: "作業<script>alert(1)</script>完了",
			want:  "作業完了",
		},
		{
			name:  "実体参照をデコードする",
			input: "<b>a &amp; b</b>",
			want:  "a & b",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCommentSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewCommentSanitizer()

	inputs := []string{
		"<p>x &lt; y</p>",
		"<ul><li>a</li><li>b</li></ul>",
		"plain",
	}
	for _, in := range inputs {
		once := sanitizer.Sanitize(in)
		twice := sanitizer.Sanitize(once)
		if once != twice {
			t.Errorf("冪等でない: %q -> %q -> %q", in, once, twice)
		}
	}
}
