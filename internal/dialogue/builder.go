// Package dialogue emits the synthesis subgraph for a multi-voice dialogue.
//
// For every voice the builder creates one source node (built-in speaker,
// designed voice, or uploaded audio) and one clone-prompt node fed by it.
// The clone prompts are gathered by a role bank, which drives a single
// dialogue-inference node reading the script. All ids come from fixed
// families, so building twice with the same inputs yields the same graph.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/voice"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

// MsgMissingUpload is reported for an audio-file voice without a usable upload.
const MsgMissingUpload = "Audio File requires a local audio upload."

// Builder emits dialogue subgraphs with a fixed set of synthesis parameters.
type Builder struct {
	params Params
}

// NewBuilder creates a builder for the given parameters.
func NewBuilder(params Params) *Builder {
	return &Builder{params: params}
}

// Params returns the builder's synthesis parameters.
func (b *Builder) Params() Params {
	return b.params
}

// Build adds the dialogue subgraph for script and voices to g and returns
// the id of the dialogue-inference node. Nothing is added to g when an error
// is returned.
func (b *Builder) Build(g *workflow.Graph, script string, voices []voice.Spec) (string, error) {
	if len(voices) == 0 || len(voices) > voice.MaxVoices {
		return "", apperr.Newf(apperr.KindInvariant, "", "dialogue needs 1 to %d voices, got %d", voice.MaxVoices, len(voices))
	}
	if err := checkAssets(voices); err != nil {
		return "", err
	}

	// Work on a copy so a failure leaves g untouched.
	work := g.Clone()

	clonePrompts := make([]string, len(voices))
	for i, v := range voices {
		src, err := b.sourceNode(work, v, i)
		if err != nil {
			return "", err
		}
		id, err := create(work, ClassVoiceClonePrompt, b.clonePromptInputs(v, src), workflow.StableID(VoiceClonePromptBase, i))
		if err != nil {
			return "", err
		}
		clonePrompts[i] = id
	}

	roles := workflow.Inputs{}
	for i, v := range voices {
		k := i + 1
		roles[fmt.Sprintf("prompt_%d", k)] = workflow.Conn(clonePrompts[i], 0)
		roles[fmt.Sprintf("role_name_%d", k)] = v.Name
	}
	roleBank, err := create(work, ClassRoleBank, roles, workflow.StableID(RoleBankBase, 0))
	if err != nil {
		return "", err
	}

	p := b.params
	dialogueID, err := create(work, ClassDialogueInference, workflow.Inputs{
		"role_bank":                   workflow.Conn(roleBank, 0),
		"script":                      script,
		"model_choice":                p.Model,
		"device":                      DialogueDevice,
		"precision":                   DialoguePrecision,
		"language":                    DialogueLanguage,
		"pause_linebreak":             PauseLinebreak,
		"period_pause":                PeriodPause,
		"comma_pause":                 CommaPause,
		"question_pause":              QuestionPause,
		"hyphen_pause":                HyphenPause,
		"merge_outputs":               MergeOutputs,
		"batch_size":                  BatchSize,
		"seed":                        p.Seed + DialogueSeedOffset,
		"max_new_tokens_per_line":     p.MaxNewTokens,
		"top_p":                       p.TopP,
		"top_k":                       p.TopK,
		"temperature":                 p.Temperature,
		"repetition_penalty":          p.RepetitionPenalty,
		"attention":                   p.Attention,
		"unload_model_after_generate": p.UnloadModel,
	}, workflow.StableID(DialogueInferenceBase, 0))
	if err != nil {
		return "", err
	}

	*g = *work
	return dialogueID, nil
}

// AttachSaveAudio wires a terminal save-audio node to the dialogue output
// and returns its id.
func AttachSaveAudio(g *workflow.Graph, dialogueID string) (string, error) {
	if !g.Has(dialogueID) {
		return "", apperr.Newf(apperr.KindInvariant, "", "dialogue node %s is not in the graph", dialogueID)
	}
	return create(g, ClassSaveAudioWS, workflow.Inputs{
		"audio": workflow.Conn(dialogueID, 0),
	}, workflow.StableID(SaveAudioWSBase, 0))
}

// checkAssets rejects audio-file voices without an upload before any node
// is created. The upload is passed to the host as given.
func checkAssets(voices []voice.Spec) error {
	for _, v := range voices {
		if v.Kind != voice.AudioFile {
			continue
		}
		data := strings.TrimSpace(v.AudioBase64)
		if data == "" {
			return apperr.New(apperr.KindAsset, "", MsgMissingUpload)
		}
	}
	return nil
}

func (b *Builder) sourceNode(g *workflow.Graph, v voice.Spec, i int) (string, error) {
	p := b.params
	seed := p.Seed + int64(i+1)

	switch v.Kind {
	case voice.Custom:
		speaker := v.Speaker
		if strings.TrimSpace(speaker) == "" {
			speaker = CustomVoiceSpeaker
		}
		return create(g, ClassCustomVoice, workflow.Inputs{
			"text":                        orPlaceholder(v.ReferenceText, PlaceholderReferenceText),
			"speaker":                     speaker,
			"model_choice":                p.Model,
			"device":                      CustomVoiceDevice,
			"precision":                   CustomVoicePrecision,
			"language":                    CustomVoiceLanguage,
			"seed":                        seed,
			"instruct":                    orPlaceholder(v.StyleInstruction, PlaceholderStyleInstruction),
			"max_new_tokens":              p.MaxNewTokens,
			"top_p":                       p.TopP,
			"top_k":                       p.TopK,
			"temperature":                 p.Temperature,
			"repetition_penalty":          p.RepetitionPenalty,
			"attention":                   p.Attention,
			"unload_model_after_generate": p.UnloadModel,
			"custom_model_path":           "",
			"custom_speaker_name":         "",
		}, workflow.StableID(CustomVoiceBase, i))

	case voice.Design:
		return create(g, ClassVoiceDesign, workflow.Inputs{
			"text":                        orPlaceholder(v.ReferenceText, PlaceholderReferenceText),
			"instruct":                    orPlaceholder(v.StyleInstruction, PlaceholderStyleInstruction),
			"model_choice":                p.Model,
			"device":                      VoiceDesignDevice,
			"precision":                   VoiceDesignPrecision,
			"language":                    VoiceDesignLanguage,
			"seed":                        seed,
			"max_new_tokens":              p.MaxNewTokens,
			"top_p":                       p.TopP,
			"top_k":                       p.TopK,
			"temperature":                 p.Temperature,
			"repetition_penalty":          p.RepetitionPenalty,
			"attention":                   p.Attention,
			"unload_model_after_generate": p.UnloadModel,
		}, workflow.StableID(VoiceDesignBase, i))

	case voice.AudioFile:
		title := "Voice Audio"
		if strings.TrimSpace(v.Name) != "" {
			title = v.Name + " Audio"
		}
		return create(g, ClassInputAudio, workflow.Inputs{
			"title":          title,
			"value":          strings.TrimSpace(v.AudioBase64),
			"description":    inputAudioDescription,
			"order_priority": 0.0,
			"is_advanced":    false,
			"raw_id":         "",
		}, workflow.StableID(InputAudioBase, i))

	default:
		return "", apperr.Newf(apperr.KindInvariant, "", "unknown voice type '%s'.", v.TypeRaw)
	}
}

func (b *Builder) clonePromptInputs(v voice.Spec, src string) workflow.Inputs {
	refText := v.ReferenceText
	if v.Kind == voice.AudioFile {
		refText = ""
	}
	return workflow.Inputs{
		"ref_audio":                   workflow.Conn(src, 0),
		"ref_text":                    refText,
		"model_choice":                b.params.Model,
		"device":                      ClonePromptDevice,
		"precision":                   ClonePromptPrecision,
		"attention":                   b.params.Attention,
		"x_vector_only":               false,
		"unload_model_after_generate": b.params.UnloadModel,
	}
}

func create(g *workflow.Graph, class string, inputs workflow.Inputs, id string) (string, error) {
	id, err := g.Create(class, inputs, id)
	if err != nil {
		return "", &apperr.Error{Op: "graph build failed", Kind: apperr.KindInvariant, Err: err}
	}
	return id, nil
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return strings.TrimSpace(s)
}
