package camera

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ErrBadScript is returned when a camera script does not follow the script protocol.
var ErrBadScript = errors.New("camera: bad script")

// Script is a camera path written in Lua. A script defines a global function
//
//	pose(frame, frames) -> { position = {x, y, z}, target = {x, y, z}, up = {x, y, z} }
//
// and may set a global number `frames` with its preferred length. `up` is optional.
// The helper orbit(radius, azimuthDeg, elevationDeg) returns the x, y, z offset of a point on
// a sphere, using the same angles as the orbit controller.
type Script interface {
	// Name returns the script's name, usually its file path.
	Name() string

	// Frames returns the frame count the script asks for, or fallback when it does not set one.
	//
	// Parameters:
	//   - fallback: the count to use when the script has no `frames` global
	//
	// Returns:
	//   - int: the frame count
	Frames(fallback int) int

	// PoseAt evaluates the script for one frame.
	//
	// Parameters:
	//   - frame: the zero-based frame index
	//   - frames: the total number of frames being rendered
	//
	// Returns:
	//   - Pose: the camera pose of the frame
	//   - error: a Lua runtime error or ErrBadScript
	PoseAt(frame, frames int) (Pose, error)

	// Close releases the Lua state.
	Close()
}

type script struct {
	mu   *sync.Mutex
	name string
	L    *lua.LState
}

var _ Script = &script{}

// NewScript compiles and runs the top level of a camera script.
//
// Parameters:
//   - name: a name used in error messages
//   - source: the Lua source
//
// Returns:
//   - Script: the loaded script
//   - error: a Lua compile/runtime error, or ErrBadScript when `pose` is missing
func NewScript(name, source string) (Script, error) {
	L := lua.NewState()
	L.SetGlobal("orbit", L.NewFunction(luaOrbit))
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("camera: script %s: %w", name, err)
	}
	if L.GetGlobal("pose").Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("%w: %s does not define function pose", ErrBadScript, name)
	}
	return &script{mu: &sync.Mutex{}, name: name, L: L}, nil
}

// LoadScript reads a camera script from disk.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("camera: reading script: %w", err)
	}
	return NewScript(path, string(data))
}

func (s *script) Name() string {
	return s.name
}

func (s *script) Frames(fallback int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.L.GetGlobal("frames").(lua.LNumber); ok && n >= 1 {
		return int(n)
	}
	return fallback
}

func (s *script) PoseAt(frame, frames int) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.L.CallByParam(lua.P{
		Fn:      s.L.GetGlobal("pose"),
		NRet:    1,
		Protect: true,
	}, lua.LNumber(frame), lua.LNumber(frames))
	if err != nil {
		return Pose{}, fmt.Errorf("camera: script %s frame %d: %w", s.name, frame, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return Pose{}, fmt.Errorf("%w: %s: pose returned %s, want table", ErrBadScript, s.name, ret.Type())
	}
	pose := Pose{Up: [3]float32{0, 1, 0}}
	if pose.Position, err = vec3Field(tbl, "position", true); err != nil {
		return Pose{}, fmt.Errorf("%w: %s: %v", ErrBadScript, s.name, err)
	}
	if pose.Target, err = vec3Field(tbl, "target", true); err != nil {
		return Pose{}, fmt.Errorf("%w: %s: %v", ErrBadScript, s.name, err)
	}
	if up, err := vec3Field(tbl, "up", false); err != nil {
		return Pose{}, fmt.Errorf("%w: %s: %v", ErrBadScript, s.name, err)
	} else if up != ([3]float32{}) {
		pose.Up = up
	}
	return pose, nil
}

func (s *script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}

// vec3Field reads a {x, y, z} array field. A missing optional field yields the zero vector.
func vec3Field(tbl *lua.LTable, key string, required bool) ([3]float32, error) {
	var out [3]float32
	v := tbl.RawGetString(key)
	if v == lua.LNil {
		if required {
			return out, fmt.Errorf("missing field %q", key)
		}
		return out, nil
	}
	arr, ok := v.(*lua.LTable)
	if !ok {
		return out, fmt.Errorf("field %q is %s, want table", key, v.Type())
	}
	for i := range 3 {
		n, ok := arr.RawGetInt(i + 1).(lua.LNumber)
		if !ok {
			return out, fmt.Errorf("field %q[%d] is not a number", key, i+1)
		}
		out[i] = float32(n)
	}
	return out, nil
}

// luaOrbit implements orbit(radius, azimuthDeg, elevationDeg) -> x, y, z.
func luaOrbit(L *lua.LState) int {
	r := float64(L.CheckNumber(1))
	az := float64(L.CheckNumber(2)) * math.Pi / 180
	el := float64(L.CheckNumber(3)) * math.Pi / 180
	L.Push(lua.LNumber(r * math.Cos(el) * math.Sin(az)))
	L.Push(lua.LNumber(r * math.Sin(el)))
	L.Push(lua.LNumber(r * math.Cos(el) * math.Cos(az)))
	return 3
}
