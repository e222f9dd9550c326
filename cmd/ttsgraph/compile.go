package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nadzzz/ttsgraph/internal/config"
	"github.com/nadzzz/ttsgraph/internal/dispatch"
	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/pipeline"
	"github.com/nadzzz/ttsgraph/internal/qwentts"
	grpctransport "github.com/nadzzz/ttsgraph/internal/transport/grpc"
	"github.com/nadzzz/ttsgraph/internal/voice"
	"github.com/nadzzz/ttsgraph/internal/workflow"
)

type compileOptions struct {
	prompt       string
	promptFile   string
	voicesFile   string
	workflowFile string
	output       string
	server       string
	timeout      time.Duration

	model             string
	seed              int64
	maxNewTokens      int
	topP              float64
	topK              int
	temperature       float64
	repetitionPenalty float64
	attention         string
	unload            bool

	video      bool
	audioVAE   string
	width      int
	height     int
	fps        int
	modelClass string
}

func newCompileCmd(root *rootOptions) *cobra.Command {
	opts := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile one prompt into a workflow graph",
		Long: `Compiles one prompt and prints the result as JSON.

Voices are read from a JSON array or a YAML list (.yaml/.yml):

  - type: custom
    name: Serena
    referenceText: Calm and warm.
  - type: audio
    name: Narrator
    audioBase64: <base64>

Synthesis flags override the configured values only when given.

Examples:
  ttsgraph compile --prompt "<audio>Serena: Hi" --voices voices.yaml --model 1.7B
  ttsgraph compile --prompt-file scene.txt --voices voices.json --model 0.6B \
      --video --workflow ltxv2.json --audio-vae 12:0 -o out.json
  ttsgraph compile --server localhost:50051 --prompt-file scene.txt --voices voices.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.prompt, "prompt", "", "prompt text holding the <audio> section")
	f.StringVar(&opts.promptFile, "prompt-file", "", "read the prompt from a file")
	f.StringVar(&opts.voicesFile, "voices", "", "voices file (JSON array or YAML list)")
	f.StringVar(&opts.workflowFile, "workflow", "", "workflow graph to extend (JSON)")
	f.StringVarP(&opts.output, "output", "o", "", "write the result to a file instead of stdout")
	f.StringVar(&opts.server, "server", "", "compile on a running daemon at this gRPC address")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	f.StringVar(&opts.model, "model", "", "model size (None, 0.6B, 1.7B)")
	f.Int64Var(&opts.seed, "seed", 0, "base seed")
	f.IntVar(&opts.maxNewTokens, "max-new-tokens", 0, "maximum generated tokens")
	f.Float64Var(&opts.topP, "top-p", 0, "nucleus sampling threshold")
	f.IntVar(&opts.topK, "top-k", 0, "top-k sampling")
	f.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature")
	f.Float64Var(&opts.repetitionPenalty, "repetition-penalty", 0, "repetition penalty")
	f.StringVar(&opts.attention, "attention", "", "attention implementation")
	f.BoolVar(&opts.unload, "unload-model", false, "unload the model after generating")

	f.BoolVar(&opts.video, "video", false, "splice the dialogue into the workflow's LTX-Video-2 graph")
	f.StringVar(&opts.audioVAE, "audio-vae", "", "audio VAE output of the workflow, as id:output")
	f.IntVar(&opts.width, "width", 0, "audio mask width")
	f.IntVar(&opts.height, "height", 0, "audio mask height")
	f.IntVar(&opts.fps, "fps", 0, "pipeline frame rate")
	f.StringVar(&opts.modelClass, "model-class", "", "class of the loaded video model")

	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
	cmd.MarkFlagsOneRequired("prompt", "prompt-file")

	return cmd
}

func runCompile(cmd *cobra.Command, root *rootOptions, opts *compileOptions) error {
	cfg, err := config.Load(root.configFile)
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.Logging)

	req, err := buildRequest(cmd, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var res *message.CompileResult
	if opts.server != "" {
		res, err = compileRemote(ctx, opts.server, req)
	} else {
		d := dispatch.New(pipeline.New(qwentts.Steps(cfg.QwenTTSOptions())))
		res, err = d.Handle(ctx, req)
	}
	if err != nil {
		return err
	}

	if res.Workflow != nil {
		if err := res.Workflow.Validate(); err != nil {
			slog.Warn("compiled graph has dangling connections", "error", err)
		}
	}

	if err := writeResult(cmd.OutOrStdout(), opts.output, res); err != nil {
		return err
	}
	if res.Failed() {
		return errors.New(res.Error)
	}
	return nil
}

// buildRequest turns flags and files into a compile request.
func buildRequest(cmd *cobra.Command, opts *compileOptions) (*message.CompileRequest, error) {
	req := &message.CompileRequest{Prompt: opts.prompt, UseInVideo: opts.video}

	if opts.promptFile != "" {
		data, err := os.ReadFile(opts.promptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt: %w", err)
		}
		req.Prompt = string(data)
	}

	if opts.voicesFile != "" {
		voices, err := loadVoices(opts.voicesFile)
		if err != nil {
			return nil, err
		}
		req.Voices = voices
	}

	if opts.workflowFile != "" {
		data, err := os.ReadFile(opts.workflowFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow: %w", err)
		}
		var g workflow.Graph
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("failed to parse workflow %s: %w", opts.workflowFile, err)
		}
		req.Workflow = &g
	}

	req.Synthesis = synthesisOverrides(cmd, opts)

	if opts.video {
		vc := &message.VideoContext{
			ModelClass: opts.modelClass,
			FPS:        opts.fps,
			Width:      opts.width,
			Height:     opts.height,
		}
		if opts.audioVAE != "" {
			conn, err := workflow.ParseConnection(opts.audioVAE)
			if err != nil {
				return nil, fmt.Errorf("invalid --audio-vae: %w", err)
			}
			vc.AudioVAE = &conn
		}
		req.Video = vc
	}

	return req, nil
}

// synthesisOverrides keeps only the flags the user actually set.
func synthesisOverrides(cmd *cobra.Command, opts *compileOptions) *message.SynthesisOptions {
	f := cmd.Flags()
	o := &message.SynthesisOptions{}
	set := false
	if f.Changed("model") {
		o.Model, set = &opts.model, true
	}
	if f.Changed("seed") {
		o.Seed, set = &opts.seed, true
	}
	if f.Changed("max-new-tokens") {
		o.MaxNewTokens, set = &opts.maxNewTokens, true
	}
	if f.Changed("top-p") {
		o.TopP, set = &opts.topP, true
	}
	if f.Changed("top-k") {
		o.TopK, set = &opts.topK, true
	}
	if f.Changed("temperature") {
		o.Temperature, set = &opts.temperature, true
	}
	if f.Changed("repetition-penalty") {
		o.RepetitionPenalty, set = &opts.repetitionPenalty, true
	}
	if f.Changed("attention") {
		o.Attention, set = &opts.attention, true
	}
	if f.Changed("unload-model") {
		o.UnloadModel, set = &opts.unload, true
	}
	if !set {
		return nil
	}
	return o
}

// loadVoices reads a voices file. YAML lists are validated and re-encoded
// as the JSON payload; anything else is passed through as JSON.
func loadVoices(path string) (message.Voices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voices: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		specs, err := voice.ParseYAML(data)
		if err != nil {
			return nil, err
		}
		return message.VoicesFromSpecs(specs)
	default:
		return message.Voices(data), nil
	}
}

func compileRemote(ctx context.Context, addr string, req *message.CompileRequest) (*message.CompileResult, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	defer conn.Close()

	return grpctransport.NewClient(conn).Compile(ctx, req)
}

func writeResult(stdout io.Writer, path string, res *message.CompileResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
