package vkprobe

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
)

func version(major, minor uint32) uint32 {
	return major<<22 | minor<<12
}

func TestInt64AtomicsNeedsBufferFeature(t *testing.T) {
	tests := []struct {
		name string
		info DeviceInfo
		want bool
	}{
		{
			name: "vulkan 1.2 without buffer atomics",
			info: DeviceInfo{APIVersion: version(1, 2), ShaderInt64: true},
			want: false,
		},
		{
			name: "extension listed but feature off",
			info: DeviceInfo{APIVersion: version(1, 1), ShaderInt64: true, AtomicInt64Extension: true},
			want: false,
		},
		{
			name: "shared atomics only",
			info: DeviceInfo{APIVersion: version(1, 3), ShaderInt64: true, ShaderSharedInt64Atomics: true},
			want: false,
		},
		{
			name: "buffer atomics without shaderInt64",
			info: DeviceInfo{APIVersion: version(1, 3), ShaderBufferInt64Atomics: true},
			want: false,
		},
		{
			name: "buffer atomics",
			info: DeviceInfo{APIVersion: version(1, 2), ShaderInt64: true, ShaderBufferInt64Atomics: true},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Int64Atomics(); got != tt.want {
				t.Errorf("Int64Atomics = %v, want %v", got, tt.want)
			}
			got := tt.info.Features()&renderer.FeatureInt64Atomics != 0
			if got != tt.want {
				t.Errorf("Features int64 bit = %v, want %v", got, tt.want)
			}
			if tt.info.Features()&renderer.FeatureIndirect == 0 {
				t.Error("indirect is always reported")
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	if got := VersionString(version(1, 3) | 250); got != "1.3.250" {
		t.Errorf("VersionString = %q", got)
	}
	if !versionAtLeast(version(1, 2), 1, 2) || versionAtLeast(version(1, 1), 1, 2) || !versionAtLeast(version(2, 0), 1, 2) {
		t.Error("versionAtLeast ordering")
	}
}
