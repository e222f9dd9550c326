package tagscan

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		expected []Token
	}{
		{
			name:     "empty document",
			doc:      "",
			expected: nil,
		},
		{
			name:     "plain text only",
			doc:      "a castle at dusk",
			expected: []Token{{Kind: KindText, Raw: "a castle at dusk", Content: "a castle at dusk"}},
		},
		{
			name: "text then tag",
			doc:  "scene <audio>Serena: Hello",
			expected: []Token{
				{Kind: KindText, Raw: "scene ", Content: "scene "},
				{Kind: KindTag, Raw: "audio>Serena: Hello", Tag: "audio", Content: "Serena: Hello"},
			},
		},
		{
			name: "leading tag has no text token",
			doc:  "<audio//cid=58800>hi<video>clip",
			expected: []Token{
				{Kind: KindTag, Raw: "audio//cid=58800>hi", Tag: "audio//cid=58800", Content: "hi"},
				{Kind: KindTag, Raw: "video>clip", Tag: "video", Content: "clip"},
			},
		},
		{
			name: "unterminated trailing fragment",
			doc:  "<audio>A: one<3 hearts",
			expected: []Token{
				{Kind: KindTag, Raw: "audio>A: one", Tag: "audio", Content: "A: one"},
				{Kind: KindUnterminated, Raw: "3 hearts", Content: "3 hearts"},
			},
		},
		{
			name: "adjacent open markers are skipped",
			doc:  "<<base>x",
			expected: []Token{
				{Kind: KindTag, Raw: "base>x", Tag: "base", Content: "x"},
			},
		},
		{
			name: "empty content after tag",
			doc:  "<break>",
			expected: []Token{
				{Kind: KindTag, Raw: "break>", Tag: "break", Content: ""},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := slices.Collect(Scan(tc.doc, DefaultOpen, DefaultClose))
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestScan_Restartable(t *testing.T) {
	seq := Scan("x <a>1<b>2", DefaultOpen, DefaultClose)

	first := slices.Collect(seq)
	second := slices.Collect(seq)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestScan_StopsEarly(t *testing.T) {
	count := 0
	for range Scan("<a>1<b>2<c>3", DefaultOpen, DefaultClose) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestScan_CustomMarkers(t *testing.T) {
	got := slices.Collect(Scan("pre[tag]body", '[', ']'))
	require.Len(t, got, 2)
	assert.Equal(t, "tag", got[1].Tag)
	assert.Equal(t, "body", got[1].Content)
}

func TestPrefixName(t *testing.T) {
	testCases := []struct {
		tag      string
		expected string
	}{
		{"audio", "audio"},
		{"AUDIO", "audio"},
		{"audio//cid=58800", "audio"},
		{"audio:intro", "audio"},
		{"audio[2]", "audio"},
		{"Region:0.1,0.2,0.5,0.5", "region"},
		{"segment[face]:eyes", "segment"},
		{"extend/12", "extend"},
		{"weird]", "weird]"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.tag, func(t *testing.T) {
			assert.Equal(t, tc.expected, PrefixName(tc.tag))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "tag", KindTag.String())
	assert.Equal(t, "unterminated", KindUnterminated.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
