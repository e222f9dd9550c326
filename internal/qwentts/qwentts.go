// Package qwentts provides the pipeline steps that compile a Qwen-TTS
// dialogue into the run's graph.
//
// The audio step builds a standalone audio graph and ends the run; the
// video step splices the dialogue into an LTX-Video-2 graph produced by
// earlier steps. Exactly one of them acts, chosen by the request's
// use_in_video flag. Both stay inert when no model is selected or the
// request carries no voices.
package qwentts

import (
	"context"
	"strings"

	"github.com/nadzzz/ttsgraph/internal/audiosection"
	"github.com/nadzzz/ttsgraph/internal/dialogue"
	"github.com/nadzzz/ttsgraph/internal/pipeline"
	"github.com/nadzzz/ttsgraph/internal/video"
	"github.com/nadzzz/ttsgraph/internal/voice"
)

// Step priorities. The audio step runs before image generation would; the
// video step runs after the video graph exists.
const (
	AudioPriority = -20
	VideoPriority = 15
)

// Step names.
const (
	AudioStepName = "qwen-tts-audio"
	VideoStepName = "qwen-tts-video"
)

// VideoDefaults are the fallbacks for fields a request's video context omits.
type VideoDefaults struct {
	FPS        int
	Width      int
	Height     int
	ModelClass string
}

// Options configures both steps.
type Options struct {
	Prompt    audiosection.Options
	Synthesis dialogue.Params
	Video     VideoDefaults
}

// DefaultOptions returns the built-in configuration.
func DefaultOptions() Options {
	return Options{
		Synthesis: dialogue.DefaultParams(),
		Video: VideoDefaults{
			FPS:        video.FallbackFPS,
			ModelClass: video.ModelClassLTXV2,
		},
	}
}

// Steps returns the audio and video steps.
func Steps(opts Options) []pipeline.Step {
	c := newCompiler(opts)
	return []pipeline.Step{
		{Name: AudioStepName, Priority: AudioPriority, Handle: c.audio},
		{Name: VideoStepName, Priority: VideoPriority, Handle: c.video},
	}
}

type compiler struct {
	opts      Options
	extractor *audiosection.Extractor
}

func newCompiler(opts Options) *compiler {
	return &compiler{opts: opts, extractor: audiosection.New(opts.Prompt)}
}

// dialogueInput is what both steps need before touching the graph.
type dialogueInput struct {
	params dialogue.Params
	voices []voice.Spec
	script string
}

// prepare validates a run's request. ok is false when the feature is not
// in use for this request.
func (c *compiler) prepare(run *pipeline.Run, step string) (in dialogueInput, ok bool, err error) {
	req := run.Request
	params := req.Synthesis.Apply(c.opts.Synthesis)
	if !params.Enabled() {
		run.Skip(step, "no model selected")
		return in, false, nil
	}
	if voice.IsEmptyPayload(req.Voices) {
		run.Skip(step, "no voices")
		return in, false, nil
	}
	if err := params.Validate(); err != nil {
		return in, false, err
	}

	voices, err := voice.Parse(req.Voices)
	if err != nil {
		return in, false, err
	}
	script, err := c.extractor.Extract(req.Prompt)
	if err != nil {
		return in, false, err
	}
	return dialogueInput{params: params, voices: voices, script: script}, true, nil
}

func (c *compiler) audio(ctx context.Context, run *pipeline.Run) error {
	if run.Request.UseInVideo {
		run.Skip(AudioStepName, "request targets video")
		return nil
	}
	in, ok, err := c.prepare(run, AudioStepName)
	if err != nil || !ok {
		return err
	}

	dialogueID, err := dialogue.NewBuilder(in.params).Build(run.Graph, in.script, in.voices)
	if err != nil {
		return err
	}
	saveID, err := dialogue.AttachSaveAudio(run.Graph, dialogueID)
	if err != nil {
		return err
	}

	run.DialogueID = dialogueID
	run.AudioOnly = true
	run.SkipFurtherSteps = true
	run.Logger.Info("audio graph compiled",
		"step", AudioStepName,
		"voices", len(in.voices),
		"dialogue_node", dialogueID,
		"save_node", saveID,
	)
	return nil
}

func (c *compiler) video(ctx context.Context, run *pipeline.Run) error {
	req := run.Request
	if !req.UseInVideo {
		run.Skip(VideoStepName, "request targets audio only")
		return nil
	}

	vc := req.Video
	modelClass := c.opts.Video.ModelClass
	if vc != nil && vc.ModelClass != "" {
		modelClass = vc.ModelClass
	}
	if !strings.EqualFold(modelClass, video.ModelClassLTXV2) {
		run.Skip(VideoStepName, "video model is not LTX-Video-2")
		return nil
	}
	if vc == nil || vc.AudioVAE == nil {
		run.Skip(VideoStepName, "graph has no audio VAE")
		return nil
	}

	in, ok, err := c.prepare(run, VideoStepName)
	if err != nil || !ok {
		return err
	}

	dialogueID, err := dialogue.NewBuilder(in.params).Build(run.Graph, in.script, in.voices)
	if err != nil {
		return err
	}
	run.DialogueID = dialogueID

	splicer := video.New(video.Options{
		AudioVAE: *vc.AudioVAE,
		Width:    firstPositive(vc.Width, c.opts.Video.Width),
		Height:   firstPositive(vc.Height, c.opts.Video.Height),
		FPS:      firstPositive(vc.FPS, c.opts.Video.FPS),
	})
	res, err := splicer.Splice(run.Graph, dialogueID)
	if err != nil {
		return err
	}
	run.Spliced = res.Spliced

	if !res.Spliced {
		run.Logger.Warn("no audio latent placeholder found, dialogue left unconnected",
			"step", VideoStepName, "dialogue_node", dialogueID)
		return nil
	}
	run.Logger.Info("dialogue spliced into video graph",
		"step", VideoStepName,
		"voices", len(in.voices),
		"dialogue_node", dialogueID,
		"fps", res.FPS,
		"rewired", res.Rewired,
		"placeholder_removed", res.PlaceholderRemoved,
	)
	return nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
