// Package video splices a compiled dialogue into an LTX-Video-2 latent graph.
//
// An LTX-Video-2 graph feeds its audio branch from an empty latent-audio
// placeholder concatenated with the video latent. The splicer replaces that
// placeholder with the encoded dialogue, masked so the sampler keeps it, and
// makes the video as long as the synthesized audio.
package video

import (
	"math"

	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/dialogue"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

// Node classes read or emitted by the splicer.
const (
	ClassConcatAVLatent      = "LTXVConcatAVLatent"
	ClassEmptyLatentAudio    = "LTXVEmptyLatentAudio"
	ClassEmptyLatentVideo    = "EmptyLTXVLatentVideo"
	ClassAudioLengthToFrames = "SwarmAudioLengthToFrames"
	ClassAudioVAEEncode      = "LTXVAudioVAEEncode"
	ClassSolidMask           = "SolidMask"
	ClassSetLatentNoiseMask  = "SetLatentNoiseMask"
)

// ModelClassLTXV2 is the model class the splice applies to.
const ModelClassLTXV2 = "lightricks-ltx-video-2"

// FallbackFPS is used when neither the graph nor the options give a frame rate.
const FallbackFPS = 24

// Default mask size when neither the options nor the graph give one.
const (
	DefaultWidth  = 512
	DefaultHeight = 512
)

// Id families of the injected nodes.
const (
	LengthToFramesBase = dialogue.VideoInjectionBase + 400
	EncodeBase         = dialogue.VideoInjectionBase + 500
	MaskBase           = dialogue.VideoInjectionBase + 600
	SetMaskBase        = dialogue.VideoInjectionBase + 700
)

const op = "video splice failed"

// Options configures a Splicer.
type Options struct {
	// AudioVAE is the graph's audio VAE output. Required.
	AudioVAE workflow.Connection

	// Width and Height size the noise mask. Zero falls back to the first
	// empty video latent's size, then to DefaultWidth and DefaultHeight.
	Width  int
	Height int

	// FPS is the pipeline frame rate, used when the placeholder carries none.
	FPS int
}

// Splicer rewrites LTX-Video-2 graphs to take their audio from a dialogue node.
type Splicer struct {
	opts Options
}

// New creates a Splicer.
func New(opts Options) *Splicer {
	return &Splicer{opts: opts}
}

// Result describes what Splice changed.
type Result struct {
	// Spliced is false when the graph had no placeholder chain to replace.
	Spliced bool

	ConcatID         string
	PlaceholderID    string
	LengthToFramesID string
	EncodeID         string
	MaskID           string
	SetMaskID        string

	// FPS is the frame rate handed to the length-to-frames node.
	FPS int

	// Rewired counts the inputs moved from the placeholder to the masked latent.
	Rewired int

	// VideoLengths counts the empty video latents now driven by the audio length.
	VideoLengths int

	// PlaceholderRemoved reports whether the placeholder was unreferenced
	// after the rewrite and got deleted.
	PlaceholderRemoved bool
}

// Splice injects the dialogue audio into g. A graph without a concat node
// fed by an empty latent-audio placeholder is left untouched, whatever the
// audio VAE option says.
func (s *Splicer) Splice(g *workflow.Graph, dialogueID string) (Result, error) {
	if !g.Has(dialogueID) {
		return Result{}, apperr.Newf(apperr.KindInvariant, op, "dialogue node %s is not in the graph", dialogueID)
	}

	concatID, placeholderID, oldLatent, frameRate, found := findPlaceholder(g)
	if !found {
		return Result{}, nil
	}
	if s.opts.AudioVAE.NodeID == "" || !g.Has(s.opts.AudioVAE.NodeID) {
		return Result{}, apperr.Newf(apperr.KindInvariant, op, "audio VAE %s is not in the graph", s.opts.AudioVAE)
	}

	fps := s.opts.FPS
	if frameRate != nil {
		fps = *frameRate
	}
	if fps <= 0 {
		fps = FallbackFPS
	}
	width, height := s.maskSize(g)

	res := Result{Spliced: true, ConcatID: concatID, PlaceholderID: placeholderID, FPS: fps}

	// Rewrite a copy so a failure leaves g untouched.
	work := g.Clone()

	var err error
	res.LengthToFramesID, err = create(work, ClassAudioLengthToFrames, workflow.Inputs{
		"audio":      workflow.Conn(dialogueID, 0),
		"frame_rate": fps,
	}, workflow.StableID(LengthToFramesBase, 0))
	if err != nil {
		return Result{}, err
	}

	frames := workflow.Conn(res.LengthToFramesID, 1)
	if placeholder, ok := work.Node(placeholderID); ok {
		placeholder.Inputs["frames_number"] = frames
	}
	for _, n := range work.OfClass(ClassEmptyLatentVideo) {
		n.Inputs["length"] = frames
		res.VideoLengths++
	}

	res.EncodeID, err = create(work, ClassAudioVAEEncode, workflow.Inputs{
		"audio":     workflow.Conn(res.LengthToFramesID, 0),
		"audio_vae": s.opts.AudioVAE,
	}, workflow.StableID(EncodeBase, 0))
	if err != nil {
		return Result{}, err
	}

	res.MaskID, err = create(work, ClassSolidMask, workflow.Inputs{
		"value":  0.0,
		"width":  width,
		"height": height,
	}, workflow.StableID(MaskBase, 0))
	if err != nil {
		return Result{}, err
	}

	res.SetMaskID, err = create(work, ClassSetLatentNoiseMask, workflow.Inputs{
		"samples": workflow.Conn(res.EncodeID, 0),
		"mask":    workflow.Conn(res.MaskID, 0),
	}, workflow.StableID(SetMaskBase, 0))
	if err != nil {
		return Result{}, err
	}

	res.Rewired = work.ReplaceConnection(oldLatent, workflow.Conn(res.SetMaskID, 0))

	// Other outputs of the placeholder may still be in use.
	if !work.IsReferenced(placeholderID) {
		if err := work.Remove(placeholderID); err != nil {
			return Result{}, &apperr.Error{Op: op, Kind: apperr.KindInvariant, Err: err}
		}
		res.PlaceholderRemoved = true
	}

	*g = *work
	return res, nil
}

// findPlaceholder returns the first concat node, in graph order, whose
// audio_latent comes from an empty latent-audio node, along with that
// node's frame rate if it has one.
func findPlaceholder(g *workflow.Graph) (concatID, placeholderID string, latent workflow.Connection, frameRate *int, ok bool) {
	for id, n := range g.OfClass(ClassConcatAVLatent) {
		c, isConn := n.Inputs.Connection("audio_latent")
		if !isConn {
			continue
		}
		src, exists := g.Node(c.NodeID)
		if !exists || src.ClassType != ClassEmptyLatentAudio {
			continue
		}
		if fr, has := src.Inputs.Int("frame_rate"); has {
			frameRate = &fr
		}
		return id, c.NodeID, c, frameRate, true
	}
	return "", "", workflow.Connection{}, nil, false
}

func (s *Splicer) maskSize(g *workflow.Graph) (int, int) {
	width, height := s.opts.Width, s.opts.Height
	for _, n := range g.OfClass(ClassEmptyLatentVideo) {
		if width <= 0 {
			width, _ = n.Inputs.Int("width")
		}
		if height <= 0 {
			height, _ = n.Inputs.Int("height")
		}
		break
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return width, height
}

func create(g *workflow.Graph, class string, inputs workflow.Inputs, id string) (string, error) {
	id, err := g.Create(class, inputs, id)
	if err != nil {
		return "", &apperr.Error{Op: op, Kind: apperr.KindInvariant, Err: err}
	}
	return id, nil
}

// FramesForDuration is the frame count the length-to-frames node derives
// from an audio duration: round(seconds*fps)+1, at least 1. Halves round to
// even, as the node does.
func FramesForDuration(seconds float64, fps int) int {
	if seconds <= 0 || fps <= 0 {
		return 1
	}
	return max(1, int(math.RoundToEven(seconds*float64(fps)))+1)
}
