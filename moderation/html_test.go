package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text untouched",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "allowed inline tags kept",
			input:    "<b>bold</b> and <em>emphasis</em>",
			expected: "<b>bold</b> and <em>emphasis</em>",
		},
		{
			name:     "script stripped",
			input:    `hi <script>alert("x")</script> there`,
			expected: "hi alert(\"x\") there",
		},
		{
			name:     "attributes dropped from kept tags",
			input:    `<b class="x" onclick="evil()">bold</b>`,
			expected: "<b>bold</b>",
		},
		{
			name:     "links stripped but text kept",
			input:    `<a href="http://evil">click</a>`,
			expected: "click",
		},
		{
			name:     "uppercase tag names normalized",
			input:    "<B>shout</B>",
			expected: "<b>shout</b>",
		},
		{
			name:     "dangling bracket is literal",
			input:    "1 < 2 and that is fine",
			expected: "1 < 2 and that is fine",
		},
		{
			name:     "block elements removed",
			input:    "<div><p>text</p></div>",
			expected: "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripHTML(tt.input))
		})
	}
}
