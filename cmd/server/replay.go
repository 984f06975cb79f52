package main

import (
	"errors"
	"fmt"
	"os"

	"catwatch/internal/app"
	"catwatch/internal/logger"
	"catwatch/internal/services/capture"
	"catwatch/internal/services/pipeline"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	replayRealtime bool
	replayMQTT     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <video>",
	Short: "Run detection and tracking over a recorded video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewWithWriters(os.Stderr, os.Stderr, cfg.Debug)

		application, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		defer application.Close()

		src, err := capture.OpenFile(args[0], replayRealtime, log)
		if err != nil {
			return err
		}

		total := int64(src.FrameCount())
		if total <= 0 {
			total = -1 // unknown length, show a spinner
		}
		bar := progressbar.NewOptions64(total,
			progressbar.OptionSetDescription("Replaying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		err = application.Replay(cmd.Context(), &progressSource{Source: src, bar: bar}, app.Options{DisableMQTT: !replayMQTT})
		bar.Finish()
		fmt.Fprintln(os.Stderr)

		stats := application.Stats()
		fmt.Printf("Frames: %d  Cycles: %d  Events: %d  Inference failures: %d\n",
			stats.Pipeline.Frames, stats.Pipeline.Cycles, stats.Pipeline.Events, stats.Pipeline.InferenceFailures)

		if errors.Is(err, pipeline.ErrSourceExhausted) {
			return nil
		}
		return err
	},
}

// progressSource advances the progress bar as frames are read from the file.
type progressSource struct {
	*capture.Source
	bar *progressbar.ProgressBar
}

func (p *progressSource) Read() (*capture.Frame, bool, error) {
	frame, ok, err := p.Source.Read()
	if ok {
		p.bar.Set64(int64(frame.Seq))
	}
	return frame, ok, err
}

func init() {
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", true, "release frames at the video's frame rate")
	replayCmd.Flags().BoolVar(&replayMQTT, "mqtt", false, "publish notifications to MQTT during replay")
	rootCmd.AddCommand(replayCmd)
}
