package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "oxy-nano"
	app.Usage = "render cluster hierarchies through a GPU-driven visibility pipeline"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render frames headless and write them as PNG",
			Description: `
Load a hierarchy (.bvh) and its cluster mesh (.nanitemesh), run the visibility
pipeline on the software device and write the resolved image of every frame.

A single argument is taken as the common base name of both files. With --script,
a Lua camera path supplies the pose (and optionally the frame count) of every frame.`,
			ArgsUsage: "asset.bvh asset.nanitemesh | asset",
			Flags:     append(sceneFlags(), renderFlags()...),
			Action:    RenderFrames,
		},
		{
			Name:  "view",
			Usage: "open a window and render interactively",
			Description: `
Middle mouse drag orbits, the wheel zooms, up/down step the debug mip override,
V cycles the visualize mode and Escape quits.`,
			ArgsUsage: "asset.bvh asset.nanitemesh | asset",
			Flags:     append(sceneFlags(), viewFlags()...),
			Action:    View,
		},
		{
			Name:      "info",
			Usage:     "print a summary of an asset pair",
			ArgsUsage: "asset.bvh asset.nanitemesh | asset",
			Action:    Info,
		},
		{
			Name:   "list-devices",
			Usage:  "list Vulkan devices and their 64-bit atomic support",
			Action: ListDevices,
		},
	}
	return app
}
