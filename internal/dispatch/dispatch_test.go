package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/ttsgraph/internal/dialogue"
	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/pipeline"
	"github.com/nadzzz/ttsgraph/internal/qwentts"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

func newDispatcher() *Dispatcher {
	return New(pipeline.New(qwentts.Steps(qwentts.DefaultOptions())))
}

func decodeRequest(t *testing.T, body string) *message.CompileRequest {
	t.Helper()
	var req message.CompileRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestHandle_AudioOnly(t *testing.T) {
	req := decodeRequest(t, `{
		"prompt": "scene <audio>Serena: Hello",
		"voices": [{"type": "custom", "name": "Serena", "referenceText": "Reference A"}],
		"synthesis": {"model": "1.7B"}
	}`)

	res, err := newDispatcher().Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.Failed(), res.Error)

	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, req.ID, res.RequestID)
	assert.True(t, res.AudioOnly)
	assert.False(t, res.Spliced)
	assert.Equal(t, "63500", res.DialogueNodeID)
	require.NotNil(t, res.Workflow)
	assert.True(t, res.Workflow.Has("63600"))
	assert.Contains(t, res.Skipped, "qwen-tts-video: request targets audio only")
}

func TestHandle_KeepsCallerGraph(t *testing.T) {
	g := workflow.New()
	g.Put("101", "UnitTest_AudioVAE", nil)
	g.Put("102", "LTXVEmptyLatentAudio", workflow.Inputs{"frame_rate": 24, "audio_vae": workflow.Conn("101", 0)})
	g.Put("103", "EmptyLTXVLatentVideo", workflow.Inputs{"length": 97})
	g.Put("104", "LTXVConcatAVLatent", workflow.Inputs{"video_latent": workflow.Conn("103", 0), "audio_latent": workflow.Conn("102", 0)})
	before, err := json.Marshal(g)
	require.NoError(t, err)

	model := "0.6B"
	vae := workflow.Conn("101", 0)
	req := &message.CompileRequest{
		ID:         "req-1",
		Prompt:     "<audio>Serena: Hello",
		Voices:     message.Voices(`[{"type": "design", "name": "Serena"}]`),
		Synthesis:  &message.SynthesisOptions{Model: &model},
		UseInVideo: true,
		Video:      &message.VideoContext{AudioVAE: &vae},
		Workflow:   g,
	}

	res, err := newDispatcher().Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "req-1", res.RequestID)
	assert.True(t, res.Spliced)
	assert.False(t, res.Workflow.Has("102"))

	after, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestHandle_UserErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
		kind string
		msg  string
	}{
		{
			name: "no audio section",
			body: `{"prompt": "a castle", "voices": [{"type": "custom", "name": "A"}], "synthesis": {"model": "1.7B"}}`,
			kind: "section",
			msg:  "Qwen-TTS: invalid audio section. missing <audio> section in the prompt.",
		},
		{
			name: "missing name",
			body: `{"prompt": "<audio>A: hi", "voices": [{"type": "custom"}], "synthesis": {"model": "1.7B"}}`,
			kind: "payload",
			msg:  "Qwen-TTS: invalid voices payload. voice entry is missing a name.",
		},
		{
			name: "missing upload",
			body: `{"prompt": "<audio>A: hi", "voices": [{"type": "audio", "name": "A"}], "synthesis": {"model": "1.7B"}}`,
			kind: "asset",
			msg:  "Qwen-TTS: Audio File requires a local audio upload.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := newDispatcher().Handle(context.Background(), decodeRequest(t, tc.body))
			require.NoError(t, err)
			assert.True(t, res.Failed())
			assert.Equal(t, tc.kind, res.ErrorKind)
			assert.Equal(t, tc.msg, res.Error)
			assert.Nil(t, res.Workflow)
		})
	}
}

func TestHandle_UnexpectedErrorIsInvariant(t *testing.T) {
	d := New(pipeline.New([]pipeline.Step{{
		Name: "broken",
		Handle: func(context.Context, *pipeline.Run) error {
			return errors.New("wires crossed")
		},
	}}))

	res, err := d.Handle(context.Background(), &message.CompileRequest{})
	require.NoError(t, err)
	assert.Equal(t, "invariant", res.ErrorKind)
	assert.Equal(t, "step broken: wires crossed", res.Error)
}

func TestHandle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newDispatcher().Handle(ctx, &message.CompileRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestHandle_InactiveFeature(t *testing.T) {
	res, err := newDispatcher().Handle(context.Background(), &message.CompileRequest{Prompt: "<audio>A: hi"})
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.False(t, res.AudioOnly)
	assert.Empty(t, res.DialogueNodeID)
	assert.Equal(t, 0, res.Workflow.Len())
	assert.Contains(t, res.Skipped, "qwen-tts-audio: no model selected")
	assert.Equal(t, dialogue.ModelNone, dialogue.DefaultParams().Model)
}
