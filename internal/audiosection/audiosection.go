// Package audiosection extracts the dialogue script from the `<audio>`
// section of a prompt document.
//
// Exactly one audio section is allowed per prompt. A section opens at an
// `<audio>` tag (optionally `<audio//cid=N>`) and closes implicitly at the
// next document-level section tag such as `<video>` or `<region:...>`.
// Other tags inside the section are part of the script and pass through
// verbatim.
package audiosection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/tagscan"
)

// DefaultSectionID is the correlation id the host prompt processor assigns
// to audio sections.
const DefaultSectionID = 58800

// DefaultTagName is the tag that opens an audio section.
const DefaultTagName = "audio"

const cidMarker = "//cid="

// DefaultTerminators are the document-level tags that end an open audio section.
var DefaultTerminators = []string{
	"base", "refiner", "video", "videoswap", "region", "segment", "object", "extend",
}

const op = "invalid audio section"

// Messages reported for section failures.
const (
	MsgMissing  = "missing <audio> section in the prompt."
	MsgMultiple = "only one <audio> section is supported."
)

// Options configures an Extractor. The zero value uses the defaults.
type Options struct {
	// SectionID is the cid an `<audio//cid=N>` tag must carry to count.
	SectionID int

	// TagName is the tag that opens a section.
	TagName string

	// Terminators lists tag names that close an open section.
	Terminators []string
}

// Extractor pulls the audio script out of prompt documents.
type Extractor struct {
	sectionID   int
	tagName     string
	terminators map[string]struct{}
}

// New creates an Extractor from opts.
func New(opts Options) *Extractor {
	if opts.SectionID == 0 {
		opts.SectionID = DefaultSectionID
	}
	if opts.TagName == "" {
		opts.TagName = DefaultTagName
	}
	if opts.Terminators == nil {
		opts.Terminators = DefaultTerminators
	}

	terms := make(map[string]struct{}, len(opts.Terminators))
	for _, t := range opts.Terminators {
		terms[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	return &Extractor{
		sectionID:   opts.SectionID,
		tagName:     strings.ToLower(opts.TagName),
		terminators: terms,
	}
}

// Tag renders the canonical opening tag for this extractor's section id,
// the form the host prompt processor substitutes for a bare `<audio>`.
func (x *Extractor) Tag() string {
	return fmt.Sprintf("<%s%s%d>", x.tagName, cidMarker, x.sectionID)
}

// Extract returns the trimmed script of the single audio section in prompt.
func (x *Extractor) Extract(prompt string) (string, error) {
	var (
		result   strings.Builder
		sections int
		inside   bool
	)

	for tok := range tagscan.Scan(prompt, tagscan.DefaultOpen, tagscan.DefaultClose) {
		switch tok.Kind {
		case tagscan.KindText:
			if inside {
				result.WriteString(tok.Content)
			}
			continue
		case tagscan.KindUnterminated:
			// A trailing line without a closing tag still belongs to the script.
			if inside {
				result.WriteRune(tagscan.DefaultOpen)
				result.WriteString(tok.Raw)
			}
			continue
		}

		name := tagscan.PrefixName(tok.Tag)
		if name == x.tagName {
			if !x.matchesSection(tok.Tag) {
				inside = false
				continue
			}
			sections++
			inside = true
			if strings.TrimSpace(tok.Content) != "" {
				result.WriteString(tok.Content)
			}
			continue
		}

		if !inside {
			continue
		}
		if _, ok := x.terminators[name]; ok {
			inside = false
			continue
		}
		result.WriteRune(tagscan.DefaultOpen)
		result.WriteString(tok.Raw)
	}

	script := result.String()
	if sections == 0 || strings.TrimSpace(script) == "" {
		return "", apperr.New(apperr.KindSection, op, MsgMissing)
	}
	if sections > 1 {
		return "", apperr.New(apperr.KindSection, op, MsgMultiple)
	}
	return strings.TrimSpace(script), nil
}

// matchesSection reports whether an audio tag belongs to this extractor's
// section. Tags without a parseable cid always match.
func (x *Extractor) matchesSection(tag string) bool {
	cut := strings.LastIndex(strings.ToLower(tag), cidMarker)
	if cut == -1 {
		return true
	}
	cid, err := strconv.Atoi(tag[cut+len(cidMarker):])
	if err != nil {
		return true
	}
	return cid == x.sectionID
}
