// Package tagscan splits a prompt document into tag and content tokens.
//
// Prompt documents use a small tag syntax: `<name...>content`, where the
// content runs until the next open marker. The scanner only splits the
// document; it assigns no meaning to tag names. Interpretation belongs to
// callers such as the audio section extractor.
package tagscan

import (
	"iter"
	"strings"
)

// Default markers used by the host prompt syntax.
const (
	DefaultOpen  = '<'
	DefaultClose = '>'
)

// Kind classifies a token produced by Scan.
type Kind int

const (
	// KindText is the leading fragment before the first open marker.
	KindText Kind = iota

	// KindTag is a fragment with a close marker: Tag holds the text before
	// it and Content the text after it.
	KindTag

	// KindUnterminated is a fragment after an open marker that never
	// closes. Content holds the whole fragment.
	KindUnterminated
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTag:
		return "tag"
	case KindUnterminated:
		return "unterminated"
	default:
		return "unknown"
	}
}

// Token is one fragment of a scanned document.
type Token struct {
	Kind Kind

	// Raw is the fragment as it appeared, without the leading open marker.
	Raw string

	// Tag is the text between the open and close markers (KindTag only).
	Tag string

	// Content is the text following the tag, or the whole fragment for
	// KindText and KindUnterminated tokens.
	Content string
}

// Scan returns a lazy sequence of tokens for doc, split on the open marker.
// The sequence is finite and may be ranged over any number of times.
//
// Empty fragments (two adjacent open markers, or a document starting with
// one) produce no token.
func Scan(doc string, open, close rune) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		first := true
		for piece := range strings.SplitSeq(doc, string(open)) {
			isFirst := first
			first = false
			if piece == "" {
				continue
			}
			if isFirst {
				if !yield(Token{Kind: KindText, Raw: piece, Content: piece}) {
					return
				}
				continue
			}

			end := strings.IndexRune(piece, close)
			if end == -1 {
				if !yield(Token{Kind: KindUnterminated, Raw: piece, Content: piece}) {
					return
				}
				continue
			}

			tok := Token{
				Kind:    KindTag,
				Raw:     piece,
				Tag:     piece[:end],
				Content: piece[end+len(string(close)):],
			}
			if !yield(tok) {
				return
			}
		}
	}
}

// PrefixName derives the comparable name of a tag: everything before the
// first ':' and the first '/', minus a trailing bracketed qualifier such as
// `[2]`, lower-cased. `audio//cid=12`, `Audio:intro` and `audio[1]` all
// yield "audio".
func PrefixName(tag string) string {
	name := tag
	if i := strings.IndexByte(name, ':'); i != -1 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '/'); i != -1 {
		name = name[:i]
	}
	if strings.HasSuffix(name, "]") {
		if open := strings.LastIndexByte(name, '['); open != -1 {
			name = name[:open]
		}
	}
	return strings.ToLower(name)
}
