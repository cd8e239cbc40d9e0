package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	window  *glfw.Window
	running bool
}

// newPlatformWindow creates the GLFW window with input callbacks and stores it as the internal window.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initialize GLFW: %w", err)
	}

	// The presenter drives the surface through WebGPU, so no GL context.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("create GLFW window: %w", err)
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)

	gw := &glfwWindow{
		window:  win,
		running: true,
	}
	w.internalWindow = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			win.SetShouldClose(true)
			return
		}
		if action == glfw.Release {
			w.keyUp(uint32(key))
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		w.scrolled(float32(yoff))
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonMiddle {
			return
		}
		x, y := win.GetCursorPos()
		w.middleButton(action == glfw.Press, x, y)
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.cursorMoved(x, y)
	})

	// Framebuffer size, not window size: the two differ on high-DPI displays and the surface
	// needs pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(width, height)
	})

	fbWidth, fbHeight := win.GetFramebufferSize()
	w.width, w.height = fbWidth, fbHeight
	return nil
}

// platformGetSurfaceDescriptor creates a wgpu.SurfaceDescriptor from the GLFW window through the
// wgpuglfw bridge (Windows, X11, Wayland, macOS).
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	if w.internalWindow == nil {
		return nil
	}
	gw := w.internalWindow.(*glfwWindow)
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

func platformSetTitle(w *engineWindow, title string) {
	if w.internalWindow == nil {
		return
	}
	w.internalWindow.(*glfwWindow).window.SetTitle(title)
}

func platformIsRunningCheck(w *engineWindow) bool {
	if w.internalWindow == nil {
		return false
	}
	gw := w.internalWindow.(*glfwWindow)
	return gw.running && !gw.window.ShouldClose()
}

func platformCloseWindow(w *engineWindow) error {
	if w.internalWindow == nil {
		return errors.New("window is not initialized")
	}
	gw := w.internalWindow.(*glfwWindow)
	gw.running = false
	gw.window.Destroy()
	w.internalWindow = nil
	glfw.Terminate()
	return nil
}

// platformProcessMessages polls GLFW for pending events without blocking.
//
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#PollEvents
func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
