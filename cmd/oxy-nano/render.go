package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/present"
	"github.com/Carmen-Shannon/oxy-nano/engine/profiler"
	"github.com/Carmen-Shannon/oxy-nano/engine/scene"
	"github.com/urfave/cli"
)

func renderFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "frames, n",
			Value: 1,
			Usage: "number of frames to render",
		},
		cli.StringFlag{
			Name:  "out, o",
			Value: "frame.png",
			Usage: "image filename; with several frames the index is inserted before the extension",
		},
		cli.StringFlag{
			Name:  "script, s",
			Usage: "Lua camera path evaluated for every frame",
		},
		cli.BoolFlag{
			Name:  "label",
			Usage: "draw the frame number, mode and cluster counts into the image",
		},
		cli.BoolFlag{
			Name:  "visit-log",
			Usage: "record and print the nodes every cull round visited",
		},
	}
}

// RenderFrames renders frames headless and writes each one as PNG.
func RenderFrames(ctx *cli.Context) error {
	setupLogging(ctx)

	frames := ctx.Int("frames")
	var path camera.Script
	if file := ctx.String("script"); file != "" {
		s, err := camera.LoadScript(file)
		if err != nil {
			return err
		}
		defer s.Close()
		path = s
		frames = s.Frames(frames)
	}
	if frames < 1 {
		return errors.New("--frames must be at least 1")
	}

	r, s, err := setupScene(ctx, scene.WithVisitLog(ctx.Bool("visit-log")))
	if err != nil {
		return err
	}
	defer r.Release()
	defer s.Release()

	prof := profiler.NewProfiler()
	var last scene.FrameStats
	for i := 0; i < frames; i++ {
		if path != nil {
			pose, err := path.PoseAt(i, frames)
			if err != nil {
				return err
			}
			s.SetCamera(pose)
		}

		stats, err := s.RenderFrame()
		if errors.Is(err, scene.ErrCapacityExceeded) {
			displayFrameStats(stats)
		}
		if err != nil {
			return err
		}
		prof.Record(profiler.Sample{
			Duration:   stats.Duration,
			HWClusters: stats.HWClusters,
			SWClusters: stats.SWClusters,
			Overflowed: stats.Overflowed(),
		})

		out := framePath(ctx.String("out"), i, frames)
		label := ""
		if ctx.Bool("label") {
			label = frameLabel(s, stats)
		}
		if err := present.SavePNG(out, s.VisualizationImage(), label); err != nil {
			return err
		}
		logger.Infof("frame %d: %d clusters (%d hw, %d sw) in %s -> %s",
			stats.Frame, stats.HWClusters+stats.SWClusters, stats.HWClusters, stats.SWClusters, stats.Duration, out)
		last = stats
	}

	displayFrameStats(last)
	if ctx.Bool("visit-log") {
		displayVisitLog(last)
	}
	if frames > 1 {
		displaySummary(prof.Summary())
	}
	return nil
}

// framePath inserts the frame index before the extension when more than one frame is rendered.
func framePath(out string, frame, frames int) string {
	if frames <= 1 {
		return out
	}
	ext := filepath.Ext(out)
	return fmt.Sprintf("%s_%04d%s", strings.TrimSuffix(out, ext), frame, ext)
}

func frameLabel(s scene.Scene, stats scene.FrameStats) string {
	return fmt.Sprintf("frame %d  %s  mip %d\nhw %d  sw %d  rounds %d",
		stats.Frame, s.VisualizeMode(), s.MipOverride(), stats.HWClusters, stats.SWClusters, stats.RoundsRun)
}
