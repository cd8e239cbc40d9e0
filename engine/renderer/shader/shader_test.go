package shader

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/Carmen-Shannon/oxy-nano/shaders"
)

func TestLoadShaderParsesDescriptor(t *testing.T) {
	s, err := LoadShader(shaders.FS, "NodeAndClusterCull", ShaderTypeCompute)
	if err != nil {
		t.Fatalf("LoadShader: %v", err)
	}
	if s.EntryPoint() != "NodeAndClusterCull" {
		t.Errorf("EntryPoint = %q", s.EntryPoint())
	}
	if s.WorkgroupSize() != [3]uint32{64, 1, 1} {
		t.Errorf("WorkgroupSize = %v", s.WorkgroupSize())
	}
	if s.PushConstantCount() != 3 {
		t.Errorf("PushConstantCount = %d, want 3", s.PushConstantCount())
	}
	if len(s.Bindings()) != 7 {
		t.Fatalf("binding count = %d, want 7", len(s.Bindings()))
	}
	out, ok := s.Binding(4)
	if !ok || !out.ReadWrite || out.Name != "out_queue" {
		t.Errorf("slot 4 = %+v", out)
	}
	frame, _ := s.Binding(5)
	if frame.Kind != AnnotationArgUniform || frame.ReadWrite {
		t.Errorf("slot 5 = %+v", frame)
	}
	if s.Path() != "NodeAndClusterCull.comp" {
		t.Errorf("Path = %q", s.Path())
	}
}

func TestEveryEmbeddedShaderLoads(t *testing.T) {
	stages := map[string]ShaderType{
		"Init":               ShaderTypeCompute,
		"CullArgs":           ShaderTypeCompute,
		"NodeAndClusterCull": ShaderTypeCompute,
		"ClusterCullArgs":    ShaderTypeCompute,
		"ClusterCull":        ShaderTypeCompute,
		"RasterArgs":         ShaderTypeCompute,
		"HWRasterizeVS":      ShaderTypeVertex,
		"HWRasterizeFS":      ShaderTypeFragment,
		"SWRasterize":        ShaderTypeCompute,
		"Visualize":          ShaderTypeCompute,
	}
	for name, st := range stages {
		s, err := LoadShader(shaders.FS, name, st)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if s.EntryPoint() != name {
			t.Errorf("%s: entry point %q", name, s.EntryPoint())
		}
	}
}

func TestLoadShaderMissing(t *testing.T) {
	_, err := LoadShader(fstest.MapFS{}, "Init", ShaderTypeCompute)
	if !errors.Is(err, ErrShaderNotFound) {
		t.Errorf("error = %v, want ErrShaderNotFound", err)
	}
}

func TestMalformedAnnotations(t *testing.T) {
	tests := []struct {
		name   string
		st     ShaderType
		source string
	}{
		{"no entry", ShaderTypeCompute, "//@oxy:workgroup_size 1 1 1"},
		{"bad kind", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:binding 0 texture read t"},
		{"writable uniform", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:binding 0 uniform read_write u"},
		{"duplicate slot", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:binding 0 storage read a\n//@oxy:binding 0 storage read b"},
		{"zero workgroup", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:workgroup_size 0 1 1"},
		{"workgroup on vertex", ShaderTypeVertex, "//@oxy:entry X\n//@oxy:workgroup_size 1 1 1"},
		{"unknown annotation", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:sampler 0 linear"},
		{"include path", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:include ../camera"},
		{"include without name", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:include"},
		{"binding extra argument", ShaderTypeCompute, "//@oxy:entry X\n//@oxy:binding 0 storage read a u32 extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewShader("x", tt.st, tt.source); err == nil {
				t.Error("expected a parse error")
			}
		})
	}
}

func TestDefaultWorkgroupSize(t *testing.T) {
	s, err := NewShader("x", ShaderTypeCompute, "// plain comment\n//@oxy:entry X\n")
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkgroupSize() != [3]uint32{1, 1, 1} {
		t.Errorf("WorkgroupSize = %v, want [1 1 1]", s.WorkgroupSize())
	}
	if len(s.Declarations()) != 1 {
		t.Errorf("declarations = %d, want 1", len(s.Declarations()))
	}
}
