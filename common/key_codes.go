package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW     = 87  // W key (ASCII)
	KeyA     = 65  // A key (ASCII)
	KeyS     = 83  // S key (ASCII)
	KeyD     = 68  // D key (ASCII)
	KeyP     = 80  // P key (ASCII), saves a screenshot in the viewer
	KeyV     = 86  // V key (ASCII), cycles the visualize mode
	KeySpace = 32  // Spacebar (ASCII)
	KeyEsc   = 256 // Escape key (GLFW)

	Key0 = 48 // 0 key (ASCII)
	Key1 = 49 // 1 key (ASCII)
	Key2 = 50 // 2 key (ASCII)
	Key3 = 51 // 3 key (ASCII)
	Key4 = 52 // 4 key (ASCII)
)

// Arrow keys (GLFW). Up and down step the debug mip override.
const (
	KeyRight = 262
	KeyLeft  = 263
	KeyDown  = 264
	KeyUp    = 265
)
