package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nadzzz/ttsgraph/internal/video"
)

func newFramesCmd() *cobra.Command {
	var (
		seconds float64
		fps     int
	)

	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Print the video length for an audio duration",
		Long: `Prints the number of video frames the compiled graph derives from an
audio clip of the given duration: max(1, round(seconds*fps) + 1).

Example:
  ttsgraph frames --seconds 4 --fps 24   # 97`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seconds < 0 {
				return fmt.Errorf("seconds must not be negative, got %g", seconds)
			}
			if fps < 1 || fps > 120 {
				return fmt.Errorf("fps must be between 1 and 120, got %d", fps)
			}
			fmt.Fprintln(cmd.OutOrStdout(), video.FramesForDuration(seconds, fps))
			return nil
		},
	}

	cmd.Flags().Float64Var(&seconds, "seconds", 0, "audio duration in seconds")
	cmd.Flags().IntVar(&fps, "fps", video.FallbackFPS, "video frame rate")
	_ = cmd.MarkFlagRequired("seconds")
	return cmd
}
