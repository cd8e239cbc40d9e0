package vkprobe

/*
#include <stddef.h>

typedef void (*oxyVoidFn)(void);
typedef oxyVoidFn (*oxyGetInstanceProcAddr)(void *instance, const char *name);
typedef void (*oxyGetPhysicalDeviceFeatures2)(void *physicalDevice, void *features);

static int oxyGetFeatures2(void *getProcAddr, void *instance, void *physicalDevice, void *features) {
	oxyGetInstanceProcAddr get = (oxyGetInstanceProcAddr)getProcAddr;
	oxyGetPhysicalDeviceFeatures2 fn = (oxyGetPhysicalDeviceFeatures2)get(instance, "vkGetPhysicalDeviceFeatures2");
	if (fn == NULL) {
		fn = (oxyGetPhysicalDeviceFeatures2)get(instance, "vkGetPhysicalDeviceFeatures2KHR");
	}
	if (fn == NULL) {
		return 0;
	}
	fn(physicalDevice, features);
	return 1;
}
*/
import "C"

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// atomicInt64Features queries VkPhysicalDeviceShaderAtomicInt64Features through
// vkGetPhysicalDeviceFeatures2. The binding does not wrap that entry point, so it is resolved
// from the instance loader.
//
// Parameters:
//   - getProcAddr: the vkGetInstanceProcAddr pointer the instance was created through
//   - instance: the instance owning pd
//   - pd: the physical device to query
//
// Returns:
//   - buffer: shaderBufferInt64Atomics
//   - shared: shaderSharedInt64Atomics
//   - ok: false when neither the core nor the KHR entry point is available
func atomicInt64Features(getProcAddr unsafe.Pointer, instance vk.Instance, pd vk.PhysicalDevice) (buffer, shared, ok bool) {
	atomics := vk.PhysicalDeviceShaderAtomicInt64Features{
		SType: vk.StructureTypePhysicalDeviceShaderAtomicInt64Features,
	}
	atomicsRef, _ := atomics.PassRef()
	defer atomics.Free()

	features := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(atomicsRef),
	}
	featuresRef, _ := features.PassRef()
	defer features.Free()

	if C.oxyGetFeatures2(getProcAddr, unsafe.Pointer(instance), unsafe.Pointer(pd), unsafe.Pointer(featuresRef)) == 0 {
		return false, false, false
	}
	atomics.Deref()
	return atomics.ShaderBufferInt64Atomics == vk.True, atomics.ShaderSharedInt64Atomics == vk.True, true
}
