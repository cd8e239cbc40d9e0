package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// tasksPerWorker controls how finely a dispatch is split; more chunks than workers keeps the pool
// busy when workgroups have uneven cost.
const tasksPerWorker = 4

type softwareRendererBackendImpl struct {
	workers  int
	features Feature
	pool     worker.DynamicWorkerPool
	taskID   atomic.Int64
	released atomic.Bool
}

var _ RendererBackend = &softwareRendererBackendImpl{}

func newSoftwareRendererBackend(workers int, disabled Feature) RendererBackend {
	if workers < 1 {
		workers = 1
	}
	return &softwareRendererBackendImpl{
		workers:  workers,
		features: (FeatureInt64Atomics | FeatureIndirect) &^ disabled,
		pool:     worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
	}
}

func (b *softwareRendererBackendImpl) Features() Feature {
	return b.features
}

func (b *softwareRendererBackendImpl) RegisterPipeline(p pipeline.Pipeline, programs *Programs) error {
	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		prog, err := programs.resolveCompute(p.Shader(shader.ShaderTypeCompute))
		if err != nil {
			return err
		}
		p.SetProgram(prog)
	case pipeline.PipelineTypeRender:
		prog, err := programs.resolveRender(p.Shader(shader.ShaderTypeVertex), p.Shader(shader.ShaderTypeFragment))
		if err != nil {
			return err
		}
		p.SetProgram(prog)
	}
	return nil
}

func (b *softwareRendererBackendImpl) CreateBuffer(label string, size uint64, usage resource.BufferUsage) (resource.Buffer, error) {
	if b.released.Load() {
		return nil, resource.ErrReleased
	}
	if size == 0 {
		return nil, fmt.Errorf("renderer: buffer %s has zero size", label)
	}
	return resource.NewBuffer(label, size, usage), nil
}

func (b *softwareRendererBackendImpl) CreateImage(label string, width, height uint32) (resource.Image, error) {
	if b.released.Load() {
		return nil, resource.ErrReleased
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("renderer: image %s has zero extent", label)
	}
	return resource.NewImage(label, width, height), nil
}

func (b *softwareRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) error {
	return writeHost(writes)
}

func (b *softwareRendererBackendImpl) Execute(cmds []command) error {
	if b.released.Load() {
		return resource.ErrReleased
	}
	for i, c := range cmds {
		var err error
		switch c.kind {
		case commandDispatch:
			err = b.dispatch(c, c.groups)
		case commandDispatchIndirect:
			groups := [3]uint32{
				c.args.LoadU32(c.offset),
				c.args.LoadU32(c.offset + 4),
				c.args.LoadU32(c.offset + 8),
			}
			err = b.dispatch(c, groups)
		case commandDrawIndirect:
			err = b.drawIndirect(c)
		case commandBarrier:
			// Commands already run to completion in order.
		}
		if err != nil {
			return fmt.Errorf("command %d (%s): %w", i, c, err)
		}
	}
	return nil
}

func (b *softwareRendererBackendImpl) dispatch(c command, groups [3]uint32) error {
	total := uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	if total == 0 {
		return nil
	}
	prog, ok := c.pipeline.Program().(ComputeProgram)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, c.pipeline.PipelineKey())
	}
	s := c.pipeline.Shader(shader.ShaderTypeCompute)
	run := prog(&dispatchBindings{
		provider:      c.provider,
		push:          c.push,
		workgroupSize: s.WorkgroupSize(),
		groups:        groups,
	})

	gx, gy := uint64(groups[0]), uint64(groups[1])
	return b.parallel(total, func(i uint64) {
		run([3]uint32{uint32(i % gx), uint32((i / gx) % gy), uint32(i / (gx * gy))})
	})
}

func (b *softwareRendererBackendImpl) drawIndirect(c command) error {
	vertexCount := c.args.LoadU32(c.offset)
	instanceCount := c.args.LoadU32(c.offset + 4)
	firstVertex := c.args.LoadU32(c.offset + 8)
	firstInstance := c.args.LoadU32(c.offset + 12)
	if vertexCount < 3 || instanceCount == 0 {
		return nil
	}

	prog, ok := c.pipeline.Program().(renderProgram)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, c.pipeline.PipelineKey())
	}
	bindings := &dispatchBindings{provider: c.provider}
	vertex := prog.vertex(bindings)
	fragment := prog.fragment(bindings)
	cull := rasterCull(c.pipeline)

	return b.parallel(uint64(instanceCount), func(i uint64) {
		instance := firstInstance + uint32(i)
		for tri := uint32(0); tri+3 <= vertexCount; tri += 3 {
			var clip [3][4]float32
			var payload uint32
			visible := true
			for k := uint32(0); k < 3; k++ {
				pos, p, ok := vertex(instance, firstVertex+tri+k)
				if !ok {
					visible = false
					break
				}
				if k == 0 {
					payload = p
				}
				clip[k] = pos
			}
			if !visible {
				continue
			}
			raster.DrawTriangle(c.viewport, clip, cull, func(x, y uint32, depth float32) {
				fragment(x, y, depth, payload)
			})
		}
	})
}

// parallel runs fn for every index in [0, n) on the worker pool and waits for all of them.
// A panicking program is reported as an error instead of taking the process down.
func (b *softwareRendererBackendImpl) parallel(n uint64, fn func(i uint64)) error {
	chunks := uint64(b.workers * tasksPerWorker)
	if chunks > n {
		chunks = n
	}
	per := (n + chunks - 1) / chunks

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for start := uint64(0); start < n; start += per {
		end := min(start+per, n)
		wg.Add(1)
		b.pool.SubmitTask(worker.Task{
			ID: int(b.taskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						errMu.Lock()
						if firstErr == nil {
							firstErr = fmt.Errorf("renderer: program panicked: %v", rec)
						}
						errMu.Unlock()
					}
				}()
				for i := start; i < end; i++ {
					fn(i)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return firstErr
}

func (b *softwareRendererBackendImpl) Release() {
	b.released.Store(true)
}

// rasterCull maps a pipeline's cull mode and front face onto the NDC winding to discard.
func rasterCull(p pipeline.Pipeline) raster.Cull {
	ccwFront := p.FrontFace() == pipeline.FrontFaceCCW
	switch p.CullMode() {
	case pipeline.CullModeBack:
		if ccwFront {
			return raster.CullClockwise
		}
		return raster.CullCounterClockwise
	case pipeline.CullModeFront:
		if ccwFront {
			return raster.CullCounterClockwise
		}
		return raster.CullClockwise
	default:
		return raster.CullNone
	}
}
