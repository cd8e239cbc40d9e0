package renderer

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/raster"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/shader"
)

// =============================================================================
// Fixtures
// =============================================================================

const countSource = `//@oxy:entry Count
//@oxy:workgroup_size 4 1 1
//@oxy:binding 0 storage read_write counters
`

const writeArgsSource = `//@oxy:entry WriteArgs
//@oxy:push_constants 1
//@oxy:binding 0 storage read_write args
`

const readArgsSource = `//@oxy:entry ReadArgs
//@oxy:binding 0 storage read args
//@oxy:binding 1 storage read_write counters
`

const quadVertexSource = `//@oxy:entry QuadVS
//@oxy:binding 0 storage read quad
`

const quadFragmentSource = `//@oxy:entry QuadFS
//@oxy:binding 1 storage read_write target
`

const testWidth, testHeight = 8, 4

func testPrograms() Programs {
	return Programs{
		Compute: map[string]ComputeProgram{
			// Count adds one per invocation at word 0 and one per workgroup at word 1 + linear group.
			"Count": func(b Bindings) WorkgroupFunc {
				counters := b.Buffer(0)
				size := b.WorkgroupSize()
				n := b.NumWorkgroups()
				return func(g [3]uint32) {
					for i := uint32(0); i < size[0]*size[1]*size[2]; i++ {
						counters.AddU32(0, 1)
					}
					linear := g[0] + g[1]*n[0] + g[2]*n[0]*n[1]
					counters.AddU32(uint64(4+4*linear), 1)
				}
			},
			"WriteArgs": func(b Bindings) WorkgroupFunc {
				args := b.Buffer(0)
				x := b.PushConstant(0)
				return func([3]uint32) {
					args.StoreU32(0, x)
					args.StoreU32(4, 1)
					args.StoreU32(8, 1)
				}
			},
			"ReadArgs": func(b Bindings) WorkgroupFunc {
				counters := b.Buffer(1)
				return func([3]uint32) {
					counters.AddU32(0, 1)
				}
			},
			"Panic": func(b Bindings) WorkgroupFunc {
				return func([3]uint32) {
					panic("boom")
				}
			},
		},
		Vertex: map[string]VertexProgram{
			// QuadVS emits a fullscreen quad as two triangles; instance 1 is rejected.
			"QuadVS": func(b Bindings) VertexFunc {
				corners := [6][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, -1}, {1, 1}, {-1, 1}}
				return func(instance, vertex uint32) ([4]float32, uint32, bool) {
					if instance == 1 {
						return [4]float32{}, 0, false
					}
					c := corners[vertex%6]
					return [4]float32{c[0], c[1], 0.5, 1}, instance*10 + vertex/3, true
				}
			},
		},
		Fragment: map[string]FragmentProgram{
			"QuadFS": func(b Bindings) FragmentFunc {
				target := b.Buffer(1)
				return func(x, y uint32, depth float32, payload uint32) {
					target.AddU32(uint64(4*(y*testWidth+x)), 1+payload)
				}
			},
		},
	}
}

func mustShader(t *testing.T, key string, st shader.ShaderType, src string) shader.Shader {
	t.Helper()
	s, err := shader.NewShader(key, st, src)
	if err != nil {
		t.Fatalf("NewShader(%s): %v", key, err)
	}
	return s
}

// mustRenderer creates a software renderer released when the test ends.
func mustRenderer(t *testing.T, opts ...RendererBuilderOption) Renderer {
	t.Helper()
	r, err := NewRenderer(BackendTypeSoftware, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

func newTestRenderer(t *testing.T, opts ...RendererBuilderOption) Renderer {
	t.Helper()
	r := mustRenderer(t, append([]RendererBuilderOption{WithWorkers(3), WithPrograms(testPrograms())}, opts...)...)

	err := r.RegisterPipelines(
		pipeline.NewPipeline("count", pipeline.PipelineTypeCompute,
			pipeline.WithComputeShader(mustShader(t, "count", shader.ShaderTypeCompute, countSource))),
		pipeline.NewPipeline("write-args", pipeline.PipelineTypeCompute,
			pipeline.WithComputeShader(mustShader(t, "write-args", shader.ShaderTypeCompute, writeArgsSource))),
		pipeline.NewPipeline("read-args", pipeline.PipelineTypeCompute,
			pipeline.WithComputeShader(mustShader(t, "read-args", shader.ShaderTypeCompute, readArgsSource))),
		pipeline.NewPipeline("quad", pipeline.PipelineTypeRender,
			pipeline.WithVertexShader(mustShader(t, "quad-vs", shader.ShaderTypeVertex, quadVertexSource)),
			pipeline.WithFragmentShader(mustShader(t, "quad-fs", shader.ShaderTypeFragment, quadFragmentSource))),
	)
	if err != nil {
		t.Fatalf("RegisterPipelines: %v", err)
	}
	return r
}

func mustBuffer(t *testing.T, r Renderer, label string, size uint64, usage resource.BufferUsage) resource.Buffer {
	t.Helper()
	b, err := r.CreateBuffer(label, size, usage)
	if err != nil {
		t.Fatalf("CreateBuffer(%s): %v", label, err)
	}
	t.Cleanup(b.Release)
	return b
}

// =============================================================================
// Registration
// =============================================================================

func TestRegisterPipelineWithoutProgram(t *testing.T) {
	r := mustRenderer(t, WithWorkers(1))

	p := pipeline.NewPipeline("count", pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(mustShader(t, "count", shader.ShaderTypeCompute, countSource)))
	if err := r.RegisterPipelines(p); !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("RegisterPipelines error = %v, want ErrProgramNotFound", err)
	}
	if r.Pipeline("count") != nil {
		t.Error("unresolved pipeline was cached")
	}
}

func TestRenderPipelineSlotConflict(t *testing.T) {
	r := mustRenderer(t, WithWorkers(1), WithPrograms(testPrograms()))

	fs := mustShader(t, "fs", shader.ShaderTypeFragment, "//@oxy:entry QuadFS\n//@oxy:binding 0 storage read_write quad\n")
	p := pipeline.NewPipeline("bad", pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(mustShader(t, "vs", shader.ShaderTypeVertex, quadVertexSource)),
		pipeline.WithFragmentShader(fs))
	if err := r.RegisterPipelines(p); !errors.Is(err, ErrBindingMismatch) {
		t.Fatalf("RegisterPipelines error = %v, want ErrBindingMismatch", err)
	}
}

func TestRequireFeatures(t *testing.T) {
	r := mustRenderer(t, WithWorkers(1))
	if err := r.RequireFeatures(FeatureInt64Atomics | FeatureIndirect); err != nil {
		t.Errorf("RequireFeatures on full device: %v", err)
	}

	limited := mustRenderer(t, WithWorkers(1), WithDisabledFeatures(FeatureInt64Atomics))
	if err := limited.RequireFeatures(FeatureInt64Atomics); !errors.Is(err, ErrMissingFeature) {
		t.Errorf("RequireFeatures error = %v, want ErrMissingFeature", err)
	}
}

func TestNewRendererRejectsUnknownBackend(t *testing.T) {
	if _, err := NewRenderer(RendererBackendType(42)); err == nil {
		t.Fatal("expected an error for an unknown backend type")
	}
}

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		name    string
		want    RendererBackendType
		wantErr bool
	}{
		{name: "software", want: BackendTypeSoftware},
		{name: "CPU", want: BackendTypeSoftware},
		{name: " wgpu ", want: BackendTypeWGPU},
		{name: "WebGPU", want: BackendTypeWGPU},
		{name: "vulkan", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackendType(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBackendType(%q) should fail", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBackendType(%q): %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if back, _ := ParseBackendType(got.String()); back != got {
				t.Errorf("%s does not parse back to itself", got)
			}
		})
	}
}

// =============================================================================
// Dispatch
// =============================================================================

func TestDispatchRunsEveryWorkgroupOnce(t *testing.T) {
	r := newTestRenderer(t)
	groups := [3]uint32{7, 3, 2}
	total := groups[0] * groups[1] * groups[2]
	counters := mustBuffer(t, r, "counters", uint64(4+4*total), resource.BufferUsageStorage)
	provider := bind_group_provider.NewBindGroupProvider("count",
		bind_group_provider.WithBuffer(0, counters, bind_group_provider.AccessReadWrite))

	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	r.DispatchCompute("count", provider, groups)
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame: %v", err)
	}

	if got := counters.LoadU32(0); got != total*4 {
		t.Errorf("invocations = %d, want %d", got, total*4)
	}
	for g := uint32(0); g < total; g++ {
		if got := counters.LoadU32(uint64(4 + 4*g)); got != 1 {
			t.Fatalf("workgroup %d ran %d times", g, got)
		}
	}
}

func TestIndirectDispatchReadsArgumentsAtExecution(t *testing.T) {
	r := newTestRenderer(t)
	args := mustBuffer(t, r, "args", 16, resource.BufferUsageStorage|resource.BufferUsageIndirect)
	counters := mustBuffer(t, r, "counters", 8, resource.BufferUsageStorage)

	writer := bind_group_provider.NewBindGroupProvider("write",
		bind_group_provider.WithBuffer(0, args, bind_group_provider.AccessReadWrite))
	reader := bind_group_provider.NewBindGroupProvider("read",
		bind_group_provider.WithBuffer(0, args, bind_group_provider.AccessRead),
		bind_group_provider.WithBuffer(1, counters, bind_group_provider.AccessReadWrite))

	if err := r.BeginComputeFrame(); err != nil {
		t.Fatal(err)
	}
	r.DispatchCompute("write-args", writer, [3]uint32{1, 1, 1}, 5)
	r.Barrier(args)
	r.DispatchComputeIndirect("read-args", reader, args, 0)
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame: %v", err)
	}
	if got := counters.LoadU32(0); got != 5 {
		t.Errorf("indirect workgroups = %d, want 5", got)
	}
}

func TestZeroWorkgroupDispatchIsNoop(t *testing.T) {
	r := newTestRenderer(t)
	counters := mustBuffer(t, r, "counters", 8, resource.BufferUsageStorage)
	provider := bind_group_provider.NewBindGroupProvider("count",
		bind_group_provider.WithBuffer(0, counters, bind_group_provider.AccessReadWrite))

	_ = r.BeginComputeFrame()
	r.DispatchCompute("count", provider, [3]uint32{0, 1, 1})
	if err := r.EndComputeFrame(); err != nil {
		t.Fatal(err)
	}
	if got := counters.LoadU32(0); got != 0 {
		t.Errorf("counter = %d, want 0", got)
	}
}

// =============================================================================
// Barrier validation
// =============================================================================

func TestMissingBarrierFailsWithoutExecuting(t *testing.T) {
	r := newTestRenderer(t)
	args := mustBuffer(t, r, "args", 16, resource.BufferUsageStorage|resource.BufferUsageIndirect)
	counters := mustBuffer(t, r, "counters", 8, resource.BufferUsageStorage)
	writer := bind_group_provider.NewBindGroupProvider("write",
		bind_group_provider.WithBuffer(0, args, bind_group_provider.AccessReadWrite))
	reader := bind_group_provider.NewBindGroupProvider("read",
		bind_group_provider.WithBuffer(0, args, bind_group_provider.AccessRead),
		bind_group_provider.WithBuffer(1, counters, bind_group_provider.AccessReadWrite))

	tests := []struct {
		name    string
		barrier []Resource
		wantErr bool
	}{
		{"no barrier", nil, true},
		{"barrier on another buffer", []Resource{counters}, true},
		{"barrier on args", []Resource{args}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = args.Write(0, make([]byte, 16))
			_ = r.BeginComputeFrame()
			r.DispatchCompute("write-args", writer, [3]uint32{1, 1, 1}, 3)
			if tt.barrier != nil {
				r.Barrier(tt.barrier...)
			}
			r.DispatchComputeIndirect("read-args", reader, args, 0)
			err := r.EndComputeFrame()

			if tt.wantErr {
				if !errors.Is(err, ErrHazard) {
					t.Fatalf("EndComputeFrame error = %v, want ErrHazard", err)
				}
				if got := args.LoadU32(0); got != 0 {
					t.Errorf("args written by a rejected submission: %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("EndComputeFrame: %v", err)
			}
		})
	}
}

func TestValidationCanBeDisabled(t *testing.T) {
	r := newTestRenderer(t, WithValidation(false))
	args := mustBuffer(t, r, "args", 16, resource.BufferUsageStorage|resource.BufferUsageIndirect)
	counters := mustBuffer(t, r, "counters", 8, resource.BufferUsageStorage)
	writer := bind_group_provider.NewBindGroupProvider("write",
		bind_group_provider.WithBuffer(0, args, bind_group_provider.AccessReadWrite))
	reader := bind_group_provider.NewBindGroupProvider("read",
		bind_group_provider.WithBuffer(0, args, bind_group_provider.AccessRead),
		bind_group_provider.WithBuffer(1, counters, bind_group_provider.AccessReadWrite))

	_ = r.BeginComputeFrame()
	r.DispatchCompute("write-args", writer, [3]uint32{1, 1, 1}, 2)
	r.DispatchComputeIndirect("read-args", reader, args, 0)
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame: %v", err)
	}
	if got := counters.LoadU32(0); got != 2 {
		t.Errorf("counter = %d, want 2", got)
	}
}

func TestBindingMismatch(t *testing.T) {
	r := newTestRenderer(t)
	counters := mustBuffer(t, r, "counters", 8, resource.BufferUsageStorage)
	uniform := mustBuffer(t, r, "uniform", 8, resource.BufferUsageUniform)

	tests := []struct {
		name     string
		provider bind_group_provider.BindGroupProvider
	}{
		{"read-only binding of read_write slot", bind_group_provider.NewBindGroupProvider("p",
			bind_group_provider.WithBuffer(0, counters, bind_group_provider.AccessRead))},
		{"missing slot", bind_group_provider.NewBindGroupProvider("p")},
		{"undeclared slot", bind_group_provider.NewBindGroupProvider("p",
			bind_group_provider.WithBuffer(0, counters, bind_group_provider.AccessReadWrite),
			bind_group_provider.WithBuffer(4, counters, bind_group_provider.AccessRead))},
		{"buffer without storage usage", bind_group_provider.NewBindGroupProvider("p",
			bind_group_provider.WithBuffer(0, uniform, bind_group_provider.AccessReadWrite))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = r.BeginComputeFrame()
			r.DispatchCompute("count", tt.provider, [3]uint32{1, 1, 1})
			if err := r.EndComputeFrame(); !errors.Is(err, ErrBindingMismatch) {
				t.Errorf("EndComputeFrame error = %v, want ErrBindingMismatch", err)
			}
		})
	}
}

func TestRecordingErrors(t *testing.T) {
	r := newTestRenderer(t)
	counters := mustBuffer(t, r, "counters", 8, resource.BufferUsageStorage)
	provider := bind_group_provider.NewBindGroupProvider("count",
		bind_group_provider.WithBuffer(0, counters, bind_group_provider.AccessReadWrite))

	if err := r.EndComputeFrame(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("EndComputeFrame without Begin = %v, want ErrNoFrame", err)
	}

	_ = r.BeginComputeFrame()
	if err := r.BeginComputeFrame(); err == nil {
		t.Error("nested BeginComputeFrame succeeded")
	}
	if err := r.WriteBuffers([]bind_group_provider.BufferWrite{{Provider: provider, Binding: 0, Data: []byte{1}}}); err == nil {
		t.Error("WriteBuffers while recording succeeded")
	}
	r.DispatchCompute("missing", provider, [3]uint32{1, 1, 1})
	if err := r.EndComputeFrame(); !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("EndComputeFrame error = %v, want ErrPipelineNotFound", err)
	}

	counters.Release()
	_ = r.BeginComputeFrame()
	r.DispatchCompute("count", provider, [3]uint32{1, 1, 1})
	if err := r.EndComputeFrame(); !errors.Is(err, resource.ErrReleased) {
		t.Errorf("EndComputeFrame error = %v, want ErrReleased", err)
	}
}

func TestProgramPanicIsReported(t *testing.T) {
	r := newTestRenderer(t)
	p := pipeline.NewPipeline("panic", pipeline.PipelineTypeCompute,
		pipeline.WithComputeShader(mustShader(t, "panic", shader.ShaderTypeCompute, "//@oxy:entry Panic\n")))
	if err := r.RegisterPipelines(p); err != nil {
		t.Fatal(err)
	}
	_ = r.BeginComputeFrame()
	r.DispatchCompute("panic", bind_group_provider.NewBindGroupProvider("none"), [3]uint32{4, 1, 1})
	if err := r.EndComputeFrame(); err == nil {
		t.Error("panicking program did not fail the submission")
	}
}

// =============================================================================
// Draw
// =============================================================================

func TestDrawIndirectCoversViewportOnce(t *testing.T) {
	r := newTestRenderer(t)
	quad := mustBuffer(t, r, "quad", 8, resource.BufferUsageStorage)
	target := mustBuffer(t, r, "target", 4*testWidth*testHeight, resource.BufferUsageStorage)
	args := mustBuffer(t, r, "args", 16, resource.BufferUsageIndirect|resource.BufferUsageCopyDst)

	raw := make([]byte, 16)
	binary.LittleEndian.PutUint32(raw[0:], 6)
	binary.LittleEndian.PutUint32(raw[4:], 2)
	if err := args.Write(0, raw); err != nil {
		t.Fatal(err)
	}

	provider := bind_group_provider.NewBindGroupProvider("quad",
		bind_group_provider.WithBuffer(0, quad, bind_group_provider.AccessRead),
		bind_group_provider.WithBuffer(1, target, bind_group_provider.AccessReadWrite))

	_ = r.BeginComputeFrame()
	r.DrawIndirect("quad", provider, args, 0, raster.Viewport{Width: testWidth, Height: testHeight})
	if err := r.EndComputeFrame(); err != nil {
		t.Fatalf("EndComputeFrame: %v", err)
	}

	// Instance 0 draws triangles with payloads 0 and 1; instance 1 is discarded by the vertex stage.
	var first, second int
	for i := uint64(0); i < testWidth*testHeight; i++ {
		switch target.LoadU32(4 * i) {
		case 1:
			first++
		case 2:
			second++
		default:
			t.Fatalf("pixel %d written %d", i, target.LoadU32(4*i))
		}
	}
	if first+second != testWidth*testHeight || first == 0 || second == 0 {
		t.Errorf("coverage split = %d/%d", first, second)
	}
}
