// Package vkprobe enumerates the host's Vulkan devices and reports whether each one can run the
// 64-bit storage buffer atomics the visibility buffer depends on. It is kept apart from the
// renderer so headless consumers never link the windowing library used to locate the loader.
package vkprobe

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
)

// ErrVulkanUnavailable is returned when no Vulkan loader can be found.
var ErrVulkanUnavailable = errors.New("vkprobe: vulkan unavailable")

const (
	atomicInt64Extension = "VK_KHR_shader_atomic_int64"
	properties2Extension = "VK_KHR_get_physical_device_properties2"
	applicationName      = "oxy-nano\x00"
)

// DeviceInfo describes one physical device and the capabilities the visibility pipeline needs.
type DeviceInfo struct {
	Name          string
	Type          string
	VendorID      uint32
	APIVersion    uint32
	DriverVersion uint32

	// ShaderInt64 reports the core shaderInt64 feature.
	ShaderInt64 bool
	// AtomicInt64Extension reports VK_KHR_shader_atomic_int64 (core since Vulkan 1.2).
	AtomicInt64Extension bool
	// ShaderBufferInt64Atomics reports the shaderBufferInt64Atomics feature. It stays optional
	// after the extension was promoted, so it is the bit that decides.
	ShaderBufferInt64Atomics bool
	// ShaderSharedInt64Atomics reports shaderSharedInt64Atomics. Informational.
	ShaderSharedInt64Atomics bool
}

// Int64Atomics reports whether the device can run 64-bit atomics on storage buffers.
func (d DeviceInfo) Int64Atomics() bool {
	return d.ShaderInt64 && d.ShaderBufferInt64Atomics
}

// Features maps the device capabilities onto renderer feature bits.
func (d DeviceInfo) Features() renderer.Feature {
	f := renderer.FeatureIndirect
	if d.Int64Atomics() {
		f |= renderer.FeatureInt64Atomics
	}
	return f
}

// VersionString formats a packed Vulkan version as major.minor.patch.
func VersionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

// ListDevices enumerates the Vulkan physical devices of the host and reports their 64-bit
// atomic support. The loader is located through GLFW.
//
// Returns:
//   - []DeviceInfo: one entry per physical device
//   - error: ErrVulkanUnavailable, or an error from instance creation or enumeration
func ListDevices() ([]DeviceInfo, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVulkanUnavailable, err)
	}
	defer glfw.Terminate()

	if !glfw.VulkanSupported() {
		return nil, ErrVulkanUnavailable
	}
	getProcAddr := glfw.GetVulkanGetInstanceProcAddress()
	vk.SetGetInstanceProcAddr(getProcAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVulkanUnavailable, err)
	}

	instance, err := createInstance()
	if err != nil {
		return nil, err
	}
	defer vk.DestroyInstance(instance, nil)
	if err := vk.InitInstance(instance); err != nil {
		return nil, fmt.Errorf("vk.InitInstance: %w", err)
	}

	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, fmt.Errorf("vkEnumeratePhysicalDevices: %w", err)
	}
	devices := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &count, devices)); err != nil {
			return nil, fmt.Errorf("vkEnumeratePhysicalDevices: %w", err)
		}
	}

	out := make([]DeviceInfo, 0, count)
	for _, pd := range devices {
		out = append(out, describe(getProcAddr, instance, pd))
	}
	return out, nil
}

// createInstance asks for Vulkan 1.1 so vkGetPhysicalDeviceFeatures2 is core. A 1.0 loader
// rejects that, in which case the instance is created at 1.0 with the properties2 extension.
func createInstance() (vk.Instance, error) {
	var instance vk.Instance
	res := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: applicationInfo(vk.MakeVersion(1, 1, 0)),
	}, nil, &instance)
	if res == vk.Success {
		return instance, nil
	}

	info := &vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: applicationInfo(vk.MakeVersion(1, 0, 0)),
	}
	if hasInstanceExtension(properties2Extension) {
		info.EnabledExtensionCount = 1
		info.PpEnabledExtensionNames = []string{properties2Extension + "\x00"}
	}
	if err := vk.Error(vk.CreateInstance(info, nil, &instance)); err != nil {
		return nil, fmt.Errorf("vkCreateInstance: %w", err)
	}
	return instance, nil
}

func applicationInfo(apiVersion uint32) *vk.ApplicationInfo {
	return &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   applicationName,
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        applicationName,
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         apiVersion,
	}
}

func describe(getProcAddr unsafe.Pointer, instance vk.Instance, pd vk.PhysicalDevice) DeviceInfo {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()

	var feats vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &feats)
	feats.Deref()

	info := DeviceInfo{
		Name:                 vk.ToString(props.DeviceName[:]),
		Type:                 deviceTypeName(props.DeviceType),
		VendorID:             props.VendorID,
		APIVersion:           props.ApiVersion,
		DriverVersion:        props.DriverVersion,
		ShaderInt64:          feats.ShaderInt64 == vk.True,
		AtomicInt64Extension: hasDeviceExtension(pd, atomicInt64Extension),
	}
	// the feature struct is only defined for devices that expose atomic_int64 in some form
	if info.AtomicInt64Extension || versionAtLeast(info.APIVersion, 1, 2) {
		info.ShaderBufferInt64Atomics, info.ShaderSharedInt64Atomics, _ = atomicInt64Features(getProcAddr, instance, pd)
	}
	return info
}

func versionAtLeast(v uint32, major, minor uint32) bool {
	vMajor, vMinor := v>>22, (v>>12)&0x3ff
	return vMajor > major || (vMajor == major && vMinor >= minor)
}

func hasInstanceExtension(name string) bool {
	var count uint32
	if vk.EnumerateInstanceExtensionProperties("", &count, nil) != vk.Success || count == 0 {
		return false
	}
	exts := make([]vk.ExtensionProperties, count)
	if vk.EnumerateInstanceExtensionProperties("", &count, exts) != vk.Success {
		return false
	}
	return containsExtension(exts, name)
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	exts := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, exts) != vk.Success {
		return false
	}
	return containsExtension(exts, name)
}

func containsExtension(exts []vk.ExtensionProperties, name string) bool {
	for i := range exts {
		exts[i].Deref()
		if vk.ToString(exts[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	default:
		return "other"
	}
}
