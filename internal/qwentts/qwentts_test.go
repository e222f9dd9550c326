package qwentts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/dialogue"
	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/pipeline"
	"github.com/nadzzz/ttsgraph/internal/video"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

type voiceRecord struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	ReferenceText    string `json:"referenceText"`
	StyleInstruction string `json:"styleInstruction"`
	Speaker          string `json:"speaker"`
	AudioBase64      string `json:"audioBase64"`
}

func voicesJSON(t *testing.T, records ...voiceRecord) message.Voices {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	return message.Voices(data)
}

var serena = voiceRecord{Type: "custom", Name: "Serena", ReferenceText: "Reference A", StyleInstruction: "Style A", Speaker: "Serena"}

func model(s string) *message.SynthesisOptions {
	return &message.SynthesisOptions{Model: &s}
}

// minimalSeed stands in for the host's base graph.
func minimalSeed() pipeline.Step {
	return pipeline.Step{Name: "seed", Priority: -1000, Handle: func(_ context.Context, run *pipeline.Run) error {
		run.Graph.Put("4", "UnitTest_Model", nil)
		run.Graph.Put("10", "UnitTest_Latent", nil)
		return nil
	}}
}

// textToVideoSeed builds an LTX-Video-2 text-to-video graph.
func textToVideoSeed() pipeline.Step {
	return pipeline.Step{Name: "ltxv2-t2v", Priority: -999, Handle: func(_ context.Context, run *pipeline.Run) error {
		g := run.Graph
		g.Put("101", "UnitTest_AudioVAE", nil)
		g.Put("102", video.ClassEmptyLatentAudio, workflow.Inputs{"batch_size": 1, "frames_number": 97, "frame_rate": 24, "audio_vae": workflow.Conn("101", 0)})
		g.Put("103", video.ClassEmptyLatentVideo, workflow.Inputs{"batch_size": 1, "length": 97, "height": 512, "width": 512})
		g.Put("104", video.ClassConcatAVLatent, workflow.Inputs{"video_latent": workflow.Conn("103", 0), "audio_latent": workflow.Conn("102", 0)})
		return nil
	}}
}

// imageToVideoSeed builds an LTX-Video-2 image-to-video graph.
func imageToVideoSeed() pipeline.Step {
	return pipeline.Step{Name: "ltxv2-i2v", Priority: -999, Handle: func(_ context.Context, run *pipeline.Run) error {
		g := run.Graph
		g.Put("201", "UnitTest_AudioVAE", nil)
		g.Put("202", video.ClassEmptyLatentAudio, workflow.Inputs{"batch_size": 1, "frames_number": 120, "frame_rate": 24, "audio_vae": workflow.Conn("201", 0)})
		g.Put("203", video.ClassEmptyLatentVideo, workflow.Inputs{"batch_size": 1, "length": 120, "height": 512, "width": 512})
		g.Put("204", "UnitTest_Image", nil)
		g.Put("205", "UnitTest_VAE", nil)
		g.Put("206", "LTXVPreprocess", workflow.Inputs{"image": workflow.Conn("204", 0)})
		g.Put("207", "LTXVImgToVideoInplace", workflow.Inputs{"vae": workflow.Conn("205", 0), "image": workflow.Conn("206", 0), "latent": workflow.Conn("203", 0)})
		g.Put("208", video.ClassConcatAVLatent, workflow.Inputs{"video_latent": workflow.Conn("207", 0), "audio_latent": workflow.Conn("202", 0)})
		return nil
	}}
}

// trailingStep records whether the run got past the feature steps.
func trailingStep(reached *bool) pipeline.Step {
	return pipeline.Step{Name: "image", Priority: 0, Handle: func(context.Context, *pipeline.Run) error {
		*reached = true
		return nil
	}}
}

func execute(t *testing.T, req *message.CompileRequest, seeds ...pipeline.Step) (*pipeline.Run, error) {
	t.Helper()
	steps := append(seeds, Steps(DefaultOptions())...)
	run := pipeline.NewRun(req, nil, nil)
	err := pipeline.New(steps).Execute(context.Background(), run)
	return run, err
}

func audioRequest(t *testing.T, prompt string, records ...voiceRecord) *message.CompileRequest {
	return &message.CompileRequest{Prompt: prompt, Voices: voicesJSON(t, records...), Synthesis: model("1.7B")}
}

func videoRequest(t *testing.T, prompt string, vae string, records ...voiceRecord) *message.CompileRequest {
	req := audioRequest(t, prompt, records...)
	req.UseInVideo = true
	conn := workflow.Conn(vae, 0)
	req.Video = &message.VideoContext{AudioVAE: &conn}
	return req
}

type found struct {
	ID   string
	Node *workflow.Node
}

func nodesOfClass(g *workflow.Graph, class string) []found {
	var out []found
	for id, n := range g.OfClass(class) {
		out = append(out, found{id, n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

func single(t *testing.T, g *workflow.Graph, class string) found {
	t.Helper()
	nodes := nodesOfClass(g, class)
	require.Len(t, nodes, 1, "expected exactly one %s", class)
	return nodes[0]
}

func TestAudio_MixedVoices(t *testing.T) {
	req := audioRequest(t, "global <audio>Serena: Hello\nAudioVoice: Hi",
		serena,
		voiceRecord{Type: "design", Name: "Designer", ReferenceText: "Reference B", StyleInstruction: "Style B"},
		voiceRecord{Type: "audio", Name: "AudioVoice", AudioBase64: "dGVzdA=="},
	)

	var reached bool
	run, err := execute(t, req, minimalSeed(), trailingStep(&reached))
	require.NoError(t, err)
	require.NoError(t, run.Graph.Validate())

	assert.Len(t, nodesOfClass(run.Graph, dialogue.ClassCustomVoice), 1)
	assert.Len(t, nodesOfClass(run.Graph, dialogue.ClassVoiceDesign), 1)
	assert.Len(t, nodesOfClass(run.Graph, dialogue.ClassInputAudio), 1)

	clones := nodesOfClass(run.Graph, dialogue.ClassVoiceClonePrompt)
	require.Len(t, clones, 3)
	roleBank := single(t, run.Graph, dialogue.ClassRoleBank)
	for k, name := range []string{"Serena", "Designer", "AudioVoice"} {
		assert.Equal(t, name, roleBank.Node.Inputs[fmt.Sprintf("role_name_%d", k+1)])
		assert.Equal(t, workflow.Conn(clones[k].ID, 0), roleBank.Node.Inputs[fmt.Sprintf("prompt_%d", k+1)])
	}

	assert.True(t, run.AudioOnly)
	assert.True(t, run.SkipFurtherSteps)
	assert.False(t, reached, "steps after the audio step must not run")
}

func TestAudio_HandsOffToSaveAudio(t *testing.T) {
	run, err := execute(t, audioRequest(t, "global <audio>Serena: Hello", serena), minimalSeed())
	require.NoError(t, err)

	dlg := single(t, run.Graph, dialogue.ClassDialogueInference)
	save := single(t, run.Graph, dialogue.ClassSaveAudioWS)
	assert.Equal(t, workflow.Conn(dlg.ID, 0), save.Node.Inputs["audio"])
	assert.Equal(t, dlg.ID, run.DialogueID)

	// the seed graph is kept
	assert.True(t, run.Graph.Has("4"))
	assert.True(t, run.Graph.Has("10"))
}

func TestAudio_WiresRoleBankAndScript(t *testing.T) {
	prompt := "<audio>\nSerena: Knock, knock.\nAlexander: Who’s there?\nSerena: Control freak.\nAlexander: Control freak\nSerena: Okay, now you say “Control freak who?”\n"
	expected := "Serena: Knock, knock.\nAlexander: Who’s there?\nSerena: Control freak.\nAlexander: Control freak\nSerena: Okay, now you say “Control freak who?”"

	alexander := voiceRecord{Type: "custom", Name: "Alexander", ReferenceText: "Reference B", StyleInstruction: "Style B", Speaker: "Serena"}
	run, err := execute(t, audioRequest(t, prompt, serena, alexander), minimalSeed())
	require.NoError(t, err)

	roleBank := single(t, run.Graph, dialogue.ClassRoleBank)
	dlg := single(t, run.Graph, dialogue.ClassDialogueInference)
	assert.Equal(t, workflow.Conn(roleBank.ID, 0), dlg.Node.Inputs["role_bank"])
	assert.Equal(t, expected, dlg.Node.Inputs["script"])
}

func TestAudio_SynthesisOverrides(t *testing.T) {
	req := audioRequest(t, "<audio>Serena: Hello", serena)
	seed := int64(1000)
	attention := "sdpa"
	req.Synthesis.Seed = &seed
	req.Synthesis.Attention = &attention

	run, err := execute(t, req)
	require.NoError(t, err)

	dlg := single(t, run.Graph, dialogue.ClassDialogueInference)
	assert.Equal(t, int64(1009), dlg.Node.Inputs["seed"])
	assert.Equal(t, "sdpa", dlg.Node.Inputs["attention"])
	assert.Equal(t, "1.7B", dlg.Node.Inputs["model_choice"])
}

func TestVideo_TextToVideo(t *testing.T) {
	var reached bool
	req := videoRequest(t, "global <audio>Serena: Hello", "101", serena)
	run, err := execute(t, req, minimalSeed(), textToVideoSeed(), trailingStep(&reached))
	require.NoError(t, err)
	require.NoError(t, run.Graph.Validate())

	dlg := single(t, run.Graph, dialogue.ClassDialogueInference)
	ltf := single(t, run.Graph, video.ClassAudioLengthToFrames)
	assert.Equal(t, workflow.Conn(dlg.ID, 0), ltf.Node.Inputs["audio"])

	emptyVideo := single(t, run.Graph, video.ClassEmptyLatentVideo)
	assert.Equal(t, workflow.Conn(ltf.ID, 1), emptyVideo.Node.Inputs["length"])

	single(t, run.Graph, video.ClassAudioVAEEncode)
	setMask := single(t, run.Graph, video.ClassSetLatentNoiseMask)
	concat := single(t, run.Graph, video.ClassConcatAVLatent)
	assert.Equal(t, workflow.Conn(setMask.ID, 0), concat.Node.Inputs["audio_latent"])

	assert.Empty(t, nodesOfClass(run.Graph, video.ClassEmptyLatentAudio))
	assert.Empty(t, nodesOfClass(run.Graph, dialogue.ClassSaveAudioWS))

	assert.True(t, run.Spliced)
	assert.False(t, run.AudioOnly)
	assert.True(t, reached, "the video step leaves later steps running")
}

func TestVideo_ImageToVideo(t *testing.T) {
	req := videoRequest(t, "global <audio>Serena: Hello", "201", serena)
	run, err := execute(t, req, minimalSeed(), imageToVideoSeed())
	require.NoError(t, err)
	require.NoError(t, run.Graph.Validate())

	single(t, run.Graph, video.ClassAudioVAEEncode)
	setMask := single(t, run.Graph, video.ClassSetLatentNoiseMask)
	concat := single(t, run.Graph, video.ClassConcatAVLatent)
	single(t, run.Graph, video.ClassEmptyLatentVideo)
	assert.Equal(t, workflow.Conn(setMask.ID, 0), concat.Node.Inputs["audio_latent"])
	assert.Empty(t, nodesOfClass(run.Graph, video.ClassEmptyLatentAudio))
}

func TestVideo_NoPlaceholderWithUnknownVAE(t *testing.T) {
	var reached bool
	req := videoRequest(t, "<audio>Serena: Hello", "101", serena)
	run, err := execute(t, req, minimalSeed(), trailingStep(&reached))
	require.NoError(t, err)

	assert.False(t, run.Spliced)
	assert.Empty(t, nodesOfClass(run.Graph, video.ClassAudioVAEEncode))
	single(t, run.Graph, dialogue.ClassDialogueInference)
	assert.True(t, reached)
}

func TestVideo_Gating(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*message.CompileRequest)
		reason string
	}{
		{
			name:   "other video model",
			mutate: func(r *message.CompileRequest) { r.Video.ModelClass = "wan-2_1" },
			reason: "qwen-tts-video: video model is not LTX-Video-2",
		},
		{
			name:   "no audio vae",
			mutate: func(r *message.CompileRequest) { r.Video.AudioVAE = nil },
			reason: "qwen-tts-video: graph has no audio VAE",
		},
		{
			name:   "no video context",
			mutate: func(r *message.CompileRequest) { r.Video = nil },
			reason: "qwen-tts-video: graph has no audio VAE",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := videoRequest(t, "<audio>Serena: Hello", "101", serena)
			tc.mutate(req)

			run, err := execute(t, req, textToVideoSeed())
			require.NoError(t, err)
			assert.Empty(t, nodesOfClass(run.Graph, dialogue.ClassDialogueInference))
			assert.Len(t, nodesOfClass(run.Graph, video.ClassEmptyLatentAudio), 1)
			assert.Contains(t, run.Skipped, tc.reason)
			assert.Contains(t, run.Skipped, "qwen-tts-audio: request targets video")
		})
	}
}

func TestSteps_Inactive(t *testing.T) {
	testCases := []struct {
		name   string
		req    *message.CompileRequest
		reason string
	}{
		{name: "model none", req: &message.CompileRequest{Prompt: "<audio>A: hi", Voices: voicesJSON(t, serena), Synthesis: model("None")}, reason: "qwen-tts-audio: no model selected"},
		{name: "model unset", req: &message.CompileRequest{Prompt: "<audio>A: hi", Voices: voicesJSON(t, serena)}, reason: "qwen-tts-audio: no model selected"},
		{name: "blank voices", req: &message.CompileRequest{Prompt: "<audio>A: hi", Voices: message.Voices("  "), Synthesis: model("1.7B")}, reason: "qwen-tts-audio: no voices"},
		{name: "empty voices", req: &message.CompileRequest{Prompt: "<audio>A: hi", Voices: message.Voices("[]"), Synthesis: model("1.7B")}, reason: "qwen-tts-audio: no voices"},
		{name: "no audio section and no voices", req: &message.CompileRequest{Prompt: "a castle", Synthesis: model("0.6B")}, reason: "qwen-tts-audio: no voices"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run, err := execute(t, tc.req, minimalSeed())
			require.NoError(t, err)
			assert.Equal(t, 2, run.Graph.Len())
			assert.False(t, run.AudioOnly)
			assert.Contains(t, run.Skipped, tc.reason)
		})
	}
}

func TestSteps_Errors(t *testing.T) {
	testCases := []struct {
		name string
		req  func(t *testing.T) *message.CompileRequest
		kind apperr.Kind
		msg  string
	}{
		{
			name: "missing audio section",
			req:  func(t *testing.T) *message.CompileRequest { return audioRequest(t, "a castle at dusk", serena) },
			kind: apperr.KindSection,
			msg:  "Qwen-TTS: invalid audio section. missing <audio> section in the prompt.",
		},
		{
			name: "two audio sections",
			req: func(t *testing.T) *message.CompileRequest {
				return audioRequest(t, "<audio>A: one<video>clip<audio>B: two", serena)
			},
			kind: apperr.KindSection,
			msg:  "Qwen-TTS: invalid audio section. only one <audio> section is supported.",
		},
		{
			name: "bad voices",
			req: func(t *testing.T) *message.CompileRequest {
				return &message.CompileRequest{Prompt: "<audio>A: hi", Voices: message.Voices(`{"type": "custom"}`), Synthesis: model("1.7B")}
			},
			kind: apperr.KindPayload,
			msg:  "Qwen-TTS: invalid voices payload. voices payload must be a JSON array.",
		},
		{
			name: "missing upload",
			req: func(t *testing.T) *message.CompileRequest {
				return audioRequest(t, "<audio>A: hi", voiceRecord{Type: "audio", Name: "Clip"})
			},
			kind: apperr.KindAsset,
			msg:  "Qwen-TTS: Audio File requires a local audio upload.",
		},
		{
			name: "out of range parameter",
			req: func(t *testing.T) *message.CompileRequest {
				req := audioRequest(t, "<audio>A: hi", serena)
				topK := 500
				req.Synthesis.TopK = &topK
				return req
			},
			kind: apperr.KindConfig,
			msg:  "top_k must be between 1 and 100",
		},
		{
			name: "video request with bad voices",
			req: func(t *testing.T) *message.CompileRequest {
				req := videoRequest(t, "<audio>A: hi", "101")
				req.Voices = message.Voices(`[{"type": "robot", "name": "R"}]`)
				return req
			},
			kind: apperr.KindPayload,
			msg:  "unknown voice type 'robot'.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run, err := execute(t, tc.req(t), minimalSeed(), textToVideoSeed())
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tc.msg)

			// fail fast: no dialogue node was emitted
			assert.Empty(t, nodesOfClass(run.Graph, dialogue.ClassDialogueInference))
			assert.Empty(t, nodesOfClass(run.Graph, dialogue.ClassVoiceClonePrompt))
		})
	}
}

func TestAudio_VoicesAsJSONString(t *testing.T) {
	var req message.CompileRequest
	body := `{"prompt": "<audio>Serena: Hello", "voices": "[{\"type\": \"custom\", \"name\": \"Serena\"}]", "synthesis": {"model": "0.6B"}}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	run, err := execute(t, &req)
	require.NoError(t, err)
	custom := single(t, run.Graph, dialogue.ClassCustomVoice)
	assert.Equal(t, dialogue.PlaceholderReferenceText, custom.Node.Inputs["text"])
	assert.Equal(t, "0.6B", custom.Node.Inputs["model_choice"])
}

func TestAudio_CustomSectionOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Prompt.SectionID = 7
	opts.Synthesis.Model = "1.7B"

	req := &message.CompileRequest{Prompt: "<audio//cid=7>Serena: Hello", Voices: voicesJSON(t, serena)}
	run := pipeline.NewRun(req, nil, nil)
	require.NoError(t, pipeline.New(Steps(opts)).Execute(context.Background(), run))

	dlg := single(t, run.Graph, dialogue.ClassDialogueInference)
	assert.Equal(t, "Serena: Hello", dlg.Node.Inputs["script"])
}
