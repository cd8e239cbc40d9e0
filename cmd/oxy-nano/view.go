package main

import (
	"github.com/Carmen-Shannon/oxy-nano/engine"
	"github.com/urfave/cli"
)

func viewFlags() []cli.Flag {
	return []cli.Flag{
		cli.Float64Flag{
			Name:  "fps",
			Usage: "frame rate limit (0 = vsync)",
		},
		cli.BoolFlag{
			Name:  "profile",
			Usage: "log frame rate, cluster counts and memory once per second",
		},
	}
}

// View opens a window and renders until it is closed.
func View(ctx *cli.Context) error {
	setupLogging(ctx)

	r, s, err := setupScene(ctx)
	if err != nil {
		return err
	}
	defer r.Release()
	defer s.Release()

	e, err := engine.NewEngine(s,
		engine.WithTitle("oxy-nano"),
		engine.WithRenderFrameLimit(ctx.Float64("fps")),
		engine.WithProfiling(ctx.Bool("profile")),
	)
	if err != nil {
		return err
	}
	defer e.Release()

	if err := e.Run(); err != nil {
		return err
	}
	if sum := e.Profiler().Summary(); sum.Frames > 0 {
		displaySummary(sum)
	}
	return nil
}
