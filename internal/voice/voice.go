// Package voice validates the voice descriptors a dialogue is synthesized with.
//
// Descriptors arrive from the UI as a JSON array of records. Each record names
// a voice kind (built-in speaker, designed voice, or uploaded audio file), a
// role name used by the dialogue script, and kind-specific fields. Validation
// is total and order-preserving: the order of the returned specs decides the
// role ordinals of the emitted graph.
package voice

import (
	"fmt"
	"strings"
)

// MaxVoices is the number of roles the role-bank node can hold.
const MaxVoices = 8

// Kind is the closed set of voice sources.
type Kind int

const (
	// Unknown never escapes a successful validation.
	Unknown Kind = iota

	// Custom is a built-in speaker voice.
	Custom

	// Design is a voice generated from a style instruction.
	Design

	// AudioFile is a voice cloned from an uploaded recording.
	AudioFile
)

// String returns the canonical type name of the kind.
func (k Kind) String() string {
	switch k {
	case Custom:
		return "custom"
	case Design:
		return "design"
	case AudioFile:
		return "audio"
	default:
		return "unknown"
	}
}

// kindAliases maps case-folded type strings to kinds.
var kindAliases = map[string]Kind{
	"custom":       Custom,
	"customvoice":  Custom,
	"design":       Design,
	"voice_design": Design,
	"voicedesign":  Design,
	"audio":        AudioFile,
	"audiofile":    AudioFile,
}

// ParseKind maps a raw type string to a Kind.
func ParseKind(raw string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return k, nil
	}
	return Unknown, fmt.Errorf("unknown voice type '%s'.", raw) //nolint:staticcheck // host wording
}

// Spec is a validated voice descriptor.
type Spec struct {
	// TypeRaw is the type string as it was submitted.
	TypeRaw string

	Kind Kind

	// Name is the role name the script refers to. Never empty.
	Name string

	ReferenceText    string
	StyleInstruction string
	Speaker          string

	// AudioBase64 is the standard base64 encoding of an uploaded recording.
	AudioBase64 string
}
