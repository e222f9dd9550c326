// Package message defines the request and result types flowing through the
// compiler pipeline, shared by every transport.
package message

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/ttsgraph/internal/dialogue"
	"github.com/nadzzz/ttsgraph/internal/voice"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

// CompileRequest asks for a dialogue to be compiled into a graph.
type CompileRequest struct {
	// ID is a unique identifier for this request (UUID). Assigned on receipt
	// when the caller leaves it empty.
	ID string `json:"id"`

	// Prompt is the free-form prompt holding the <audio> section.
	Prompt string `json:"prompt"`

	// Voices is the voices payload: a JSON array, or a JSON string holding
	// one as the UI sends it.
	Voices Voices `json:"voices,omitempty" swaggertype:"array,object"`

	// Synthesis overrides the configured synthesis parameters field by field.
	Synthesis *SynthesisOptions `json:"synthesis,omitempty"`

	// UseInVideo selects the video splice instead of the audio-only output.
	UseInVideo bool `json:"use_in_video,omitempty"`

	// Video describes the graph the dialogue is spliced into.
	Video *VideoContext `json:"video,omitempty"`

	// Workflow is the graph to extend. Empty means a new graph.
	Workflow *workflow.Graph `json:"workflow,omitempty" swaggertype:"object"`

	// Timestamp is when the request was received.
	Timestamp time.Time `json:"timestamp"`
}

// EnsureID assigns a fresh UUID when the request has none.
func (r *CompileRequest) EnsureID() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
}

// Voices holds the raw voices payload as JSON text.
type Voices []byte

// UnmarshalJSON keeps arrays as they are and unwraps strings, so both
// `[...]` and `"[...]"` carry the same payload.
func (v *Voices) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*v = nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Voices(s)
	default:
		*v = append((*v)[:0], trimmed...)
	}
	return nil
}

// MarshalJSON writes the payload verbatim when it is valid JSON and as a
// string otherwise.
func (v Voices) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(v)) == 0 {
		return []byte("null"), nil
	}
	if json.Valid(v) {
		return bytes.TrimSpace(v), nil
	}
	return json.Marshal(string(v))
}

// VoicesFromSpecs encodes validated specs as a voices payload.
func VoicesFromSpecs(specs []voice.Spec) (Voices, error) {
	data, err := json.Marshal(voice.Records(specs))
	if err != nil {
		return nil, err
	}
	return Voices(data), nil
}

// SynthesisOptions are per-request overrides. Nil fields keep the
// configured value.
type SynthesisOptions struct {
	Model             *string  `json:"model,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`
	MaxNewTokens      *int     `json:"max_new_tokens,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	TopK              *int     `json:"top_k,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	Attention         *string  `json:"attention,omitempty"`
	UnloadModel       *bool    `json:"unload_model_after_generate,omitempty"`
}

// Apply returns base with the set overrides applied. A nil receiver
// returns base unchanged.
func (o *SynthesisOptions) Apply(base dialogue.Params) dialogue.Params {
	if o == nil {
		return base
	}
	p := base
	if o.Model != nil {
		p.Model = *o.Model
	}
	if o.Seed != nil {
		p.Seed = *o.Seed
	}
	if o.MaxNewTokens != nil {
		p.MaxNewTokens = *o.MaxNewTokens
	}
	if o.TopP != nil {
		p.TopP = *o.TopP
	}
	if o.TopK != nil {
		p.TopK = *o.TopK
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.RepetitionPenalty != nil {
		p.RepetitionPenalty = *o.RepetitionPenalty
	}
	if o.Attention != nil {
		p.Attention = *o.Attention
	}
	if o.UnloadModel != nil {
		p.UnloadModel = *o.UnloadModel
	}
	return p
}

// VideoContext describes the video graph a dialogue is spliced into.
type VideoContext struct {
	// ModelClass is the class of the loaded video model
	// (e.g. "lightricks-ltx-video-2"). Empty uses the configured default.
	ModelClass string `json:"model_class,omitempty"`

	// AudioVAE is the graph's audio VAE output. The splice is skipped
	// without one.
	AudioVAE *workflow.Connection `json:"audio_vae,omitempty" swaggertype:"array,string"`

	// FPS is the pipeline frame rate used when the graph carries none.
	FPS int `json:"fps,omitempty"`

	// Width and Height size the audio noise mask.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// CompileResult is the outcome of compiling a request.
type CompileResult struct {
	// RequestID is the original request ID.
	RequestID string `json:"request_id"`

	// Workflow is the compiled graph.
	Workflow *workflow.Graph `json:"workflow,omitempty" swaggertype:"object"`

	// DialogueNodeID is the id of the dialogue-inference node, when one was built.
	DialogueNodeID string `json:"dialogue_node_id,omitempty"`

	// AudioOnly is set when the request compiled to an audio-only graph and
	// no further generation steps should run.
	AudioOnly bool `json:"audio_only"`

	// Spliced is set when the dialogue was injected into a video graph.
	Spliced bool `json:"spliced"`

	// Skipped lists the steps that had nothing to do, with the reason.
	Skipped []string `json:"skipped,omitempty"`

	// Error is set if compilation failed.
	Error string `json:"error,omitempty"`

	// ErrorKind categorizes Error (payload, section, asset, config, invariant).
	ErrorKind string `json:"error_kind,omitempty"`
}

// Failed reports whether the result carries an error.
func (r *CompileResult) Failed() bool {
	return r.Error != ""
}
