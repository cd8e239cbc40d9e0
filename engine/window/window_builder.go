package window

// WindowBuilderOption is a functional option for configuring an engineWindow.
// Use the With* functions to create options.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the initial window size. Non-positive values are ignored.
//
// Parameters:
//   - width, height: the requested client area in screen coordinates
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		if width > 0 && height > 0 {
			w.width, w.height = width, height
		}
	}
}

// WithSizeLimits bounds interactive resizing.
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minWidth, w.minHeight = minWidth, minHeight
		w.maxWidth, w.maxHeight = maxWidth, maxHeight
	}
}

// WithInputHandler routes input events to h from the first frame on.
func WithInputHandler(h InputHandler) WindowBuilderOption {
	return func(w *engineWindow) {
		w.handler = h
	}
}
