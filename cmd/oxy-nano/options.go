package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/Carmen-Shannon/oxy-nano/engine/scene"
	"github.com/urfave/cli"
)

// Extensions tried when a single base name is given.
const (
	bvhExt  = ".bvh"
	meshExt = ".nanitemesh"
)

// sceneFlags are shared by render and view.
func sceneFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: 1280,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 720,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "rounds",
			Value: scene.DefaultCullRounds,
			Usage: "cull rounds per frame",
		},
		cli.IntFlag{
			Name:  "adaptive",
			Usage: "run cull rounds until the queue drains, at most this many (0 = fixed rounds)",
		},
		cli.StringFlag{
			Name:  "overflow",
			Value: scene.OverflowDropAndLog.String(),
			Usage: "what to do when a work buffer fills up: drop, grow or strict",
		},
		cli.Uint64Flag{
			Name:  "queue-bytes",
			Value: scene.DefaultBufferSize,
			Usage: "byte size of each work queue, the batch and the visible cluster list",
		},
		cli.Uint64Flag{
			Name:  "max-bytes",
			Value: scene.DefaultMaxBufferSize,
			Usage: "upper bound for buffers grown by --overflow grow",
		},
		cli.BoolFlag{
			Name:  "no-sw",
			Usage: "route every cluster to the hardware raster path",
		},
		cli.StringFlag{
			Name:  "mode",
			Value: scene.VisualizeClusters.String(),
			Usage: "visualize mode: clusters, triangles, depth or shaded",
		},
		cli.UintFlag{
			Name:  "mip",
			Usage: "debug mip override (0-8 or 10)",
		},
		cli.Float64Flag{
			Name:  "lod-sw",
			Value: 1,
			Usage: "software LOD reference in pixels",
		},
		cli.Float64Flag{
			Name:  "lod-hw",
			Value: 32,
			Usage: "hardware raster threshold in pixels",
		},
		cli.Float64Flag{
			Name:  "error-threshold",
			Value: 1,
			Usage: "projected error in reference pixels below which traversal stops",
		},
		cli.Float64Flag{
			Name:  "rotation",
			Value: 180,
			Usage: "model rotation about +Y in degrees",
		},
		cli.StringFlag{
			Name:  "eye",
			Value: "-330,330,-330",
			Usage: "camera position x,y,z",
		},
		cli.StringFlag{
			Name:  "target",
			Value: "0,80,0",
			Usage: "camera target x,y,z",
		},
		cli.Float64Flag{
			Name:  "fov",
			Value: 90,
			Usage: "vertical field of view in degrees",
		},
		cli.Float64Flag{
			Name:  "near",
			Value: 10,
			Usage: "near clip distance",
		},
		cli.Float64Flag{
			Name:  "far",
			Value: 10000,
			Usage: "far clip distance",
		},
		cli.StringFlag{
			Name:  "backend",
			Value: renderer.BackendTypeSoftware.String(),
			Usage: "device to run the passes on: software or wgpu",
		},
		cli.BoolFlag{
			Name:  "fallback-adapter",
			Usage: "ask the wgpu backend for the adapter's software fallback",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "software device worker count (0 = one per CPU)",
		},
		cli.BoolFlag{
			Name:  "no-validation",
			Usage: "skip barrier hazard validation",
		},
		cli.StringFlag{
			Name:  "shader-dir",
			Usage: "load pass descriptors from this directory instead of the built-in set",
		},
	}
}

// assetPaths resolves the positional arguments into the hierarchy and mesh paths.
func assetPaths(ctx *cli.Context) (string, string, error) {
	switch ctx.NArg() {
	case 1:
		base := ctx.Args().First()
		if ext := filepath.Ext(base); ext == bvhExt || ext == meshExt {
			base = strings.TrimSuffix(base, ext)
		}
		return base + bvhExt, base + meshExt, nil
	case 2:
		return ctx.Args().Get(0), ctx.Args().Get(1), nil
	default:
		return "", "", errors.New("expected a .bvh and a .nanitemesh file, or their common base name")
	}
}

func loadStore(ctx *cli.Context) (*asset.Store, error) {
	bvhPath, meshPath, err := assetPaths(ctx)
	if err != nil {
		return nil, err
	}
	store, err := asset.LoadStore(context.Background(), bvhPath, meshPath)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded %s and %s", bvhPath, meshPath)
	return store, nil
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) ([3]float32, error) {
	var v [3]float32
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("%q: want x,y,z", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return v, fmt.Errorf("%q: %w", s, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func newRenderer(ctx *cli.Context) (renderer.Renderer, error) {
	backend, err := renderer.ParseBackendType(ctx.String("backend"))
	if err != nil {
		return nil, fmt.Errorf("--backend: %w", err)
	}
	opts := []renderer.RendererBuilderOption{
		renderer.WithValidation(!ctx.Bool("no-validation")),
		renderer.WithForceFallbackAdapter(ctx.Bool("fallback-adapter")),
	}
	if n := ctx.Int("workers"); n > 0 {
		opts = append(opts, renderer.WithWorkers(n))
	}
	r, err := renderer.NewRenderer(backend, opts...)
	if err != nil {
		return nil, err
	}
	logger.Infof("%s device, features %s", r.BackendType(), describeFeatures(r.Features()))
	return r, nil
}

// describeFeatures lists the set bits of f by name.
func describeFeatures(f renderer.Feature) string {
	var names []string
	for bit := renderer.Feature(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit != 0 {
			names = append(names, bit.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func newCamera(ctx *cli.Context) (camera.Camera, error) {
	eye, err := parseVec3(ctx.String("eye"))
	if err != nil {
		return nil, fmt.Errorf("--eye %w", err)
	}
	target, err := parseVec3(ctx.String("target"))
	if err != nil {
		return nil, fmt.Errorf("--target %w", err)
	}
	near, far := float32(ctx.Float64("near")), float32(ctx.Float64("far"))
	if near <= 0 || far <= near {
		return nil, fmt.Errorf("clip range %v..%v: need 0 < near < far", near, far)
	}
	return camera.NewCamera(
		camera.WithPose(camera.Pose{Position: eye, Target: target, Up: [3]float32{0, 1, 0}}),
		camera.WithFov(float32(ctx.Float64("fov")*math.Pi/180)),
		camera.WithClip(near, far),
	), nil
}

// sceneOptions maps the shared flags onto scene options.
func sceneOptions(ctx *cli.Context, cam camera.Camera) ([]scene.SceneBuilderOption, error) {
	policy, ok := scene.ParseOverflowPolicy(ctx.String("overflow"))
	if !ok {
		return nil, fmt.Errorf("--overflow %q: want drop, grow or strict", ctx.String("overflow"))
	}
	mode, ok := scene.ParseVisualizeMode(ctx.String("mode"))
	if !ok {
		return nil, fmt.Errorf("--mode %q: want clusters, triangles, depth or shaded", ctx.String("mode"))
	}
	width, height := ctx.Int("width"), ctx.Int("height")
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame size %dx%d: both sides must be positive", width, height)
	}
	bytes := ctx.Uint64("queue-bytes")

	opts := []scene.SceneBuilderOption{
		scene.WithSize(uint32(width), uint32(height)),
		scene.WithCamera(cam),
		scene.WithCullRounds(ctx.Int("rounds")),
		scene.WithOverflowPolicy(policy),
		scene.WithQueueCapacity(bytes),
		scene.WithBatchCapacity(bytes),
		scene.WithListCapacity(bytes),
		scene.WithMaxBufferSize(ctx.Uint64("max-bytes")),
		scene.WithSoftwareRaster(!ctx.Bool("no-sw")),
		scene.WithVisualizeMode(mode),
		scene.WithMipOverride(uint32(ctx.Uint("mip"))),
		scene.WithLODReferences(float32(ctx.Float64("lod-sw")), float32(ctx.Float64("lod-hw"))),
		scene.WithErrorThreshold(float32(ctx.Float64("error-threshold"))),
		scene.WithModelRotation(float32(ctx.Float64("rotation") * math.Pi / 180)),
	}
	if n := ctx.Int("adaptive"); n > 0 {
		opts = append(opts, scene.WithAdaptiveTraversal(n))
	}
	if dir := ctx.String("shader-dir"); dir != "" {
		opts = append(opts, scene.WithShaderDir(dir))
	}
	return opts, nil
}

// setupScene loads the assets and builds the device and the scene from the shared flags.
// The caller releases both.
func setupScene(ctx *cli.Context, extra ...scene.SceneBuilderOption) (renderer.Renderer, scene.Scene, error) {
	store, err := loadStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	cam, err := newCamera(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts, err := sceneOptions(ctx, cam)
	if err != nil {
		return nil, nil, err
	}

	r, err := newRenderer(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := scene.NewScene(r, store, append(opts, extra...)...)
	if err != nil {
		r.Release()
		return nil, nil, err
	}
	return r, s, nil
}
