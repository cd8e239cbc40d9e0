package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"
)

// ShaderType identifies the pipeline stage a shader runs in.
type ShaderType int

const (
	// ShaderTypeCompute indicates a compute pass descriptor.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex stage of a raster pipeline.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment stage of a raster pipeline.
	ShaderTypeFragment
)

// ErrShaderNotFound is returned when a shader file is missing from the shader directory.
var ErrShaderNotFound = errors.New("shader: not found")

// extensions maps descriptor file extensions to their stage.
var extensions = map[ShaderType]string{
	ShaderTypeCompute:  ".comp",
	ShaderTypeVertex:   ".vert",
	ShaderTypeFragment: ".frag",
}

// BindingDecl is one slot declared by a shader.
type BindingDecl struct {
	Slot      int
	Kind      AnnotationArg
	ReadWrite bool
	Name      string

	// Element is the WGSL element type from the annotation, empty for the default.
	Element string
}

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	path          string
	source        string
	shaderType    ShaderType
	entryPoint    string
	workGroupSize [3]uint32
	bindings      map[int]BindingDecl
	pushConstants int
	declarations  []Annotation

	// includes is the directory @oxy:include resolves against; nil for shaders built from text.
	includes   fs.FS
	kernelOnce sync.Once
	kernel     string
	kernelErr  error
}

// Shader is a loaded pass descriptor: the entry point that the device resolves to a program,
// its workgroup size and the numbered slots it binds.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Path returns the path the shader was loaded from, relative to its shader directory.
	Path() string

	// Source retrieves the descriptor text.
	Source() string

	// ShaderType returns the type of the shader (vertex, fragment, or compute).
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex, ShaderTypeFragment, or ShaderTypeCompute
	ShaderType() ShaderType

	// EntryPoint returns the program name the device binds this shader to.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions for compute shaders.
	// Returns [1, 1, 1] when no size is declared and [0, 0, 0] for raster stages.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Binding returns the declaration of one slot.
	//
	// Parameters:
	//   - slot: the binding slot
	//
	// Returns:
	//   - BindingDecl: the declaration
	//   - bool: false when the shader does not declare the slot
	Binding(slot int) (BindingDecl, bool)

	// Bindings returns every declared slot keyed by slot index.
	Bindings() map[int]BindingDecl

	// PushConstantCount returns the number of 32-bit push constants the shader reads.
	PushConstantCount() int

	// Declarations returns every parsed annotation in source order.
	Declarations() []Annotation

	// Kernel returns the WGSL module of the shader: the descriptor with every annotation
	// expanded by the PreProcessor. It is generated on first use and cached; only the WGSL
	// backend asks for it.
	//
	// Returns:
	//   - string: the WGSL source
	//   - error: a pre-processing error, for example a missing include
	Kernel() (string, error)
}

var _ Shader = &shader{}

// NewShader parses a pass descriptor from source text.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - shaderType: the stage the shader runs in
//   - source: the descriptor text
//
// Returns:
//   - Shader: the parsed shader
//   - error: an error if an annotation is malformed or the entry point is missing
func NewShader(key string, shaderType ShaderType, source string) (Shader, error) {
	s := &shader{
		key:        key,
		shaderType: shaderType,
		source:     source,
		bindings:   make(map[int]BindingDecl),
	}
	if shaderType == ShaderTypeCompute {
		s.workGroupSize = [3]uint32{1, 1, 1}
	}
	if err := s.parse(); err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return s, nil
}

// LoadShader reads <name><ext> from fsys, where the extension follows the stage
// (.comp, .vert or .frag), and parses it.
//
// Parameters:
//   - fsys: the shader directory
//   - name: the shader name, also used as its key
//   - shaderType: the stage the shader runs in
//
// Returns:
//   - Shader: the parsed shader
//   - error: ErrShaderNotFound (wrapped) when the file is missing, or a parse error
func LoadShader(fsys fs.FS, name string, shaderType ShaderType) (Shader, error) {
	p := path.Clean(name + extensions[shaderType])
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrShaderNotFound, p)
		}
		return nil, fmt.Errorf("shader: reading %s: %w", p, err)
	}
	sh, err := NewShader(name, shaderType, string(data))
	if err != nil {
		return nil, err
	}
	sh.(*shader).path = p
	sh.(*shader).includes = fsys
	return sh, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Path() string {
	return s.path
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Binding(slot int) (BindingDecl, bool) {
	b, ok := s.bindings[slot]
	return b, ok
}

func (s *shader) Bindings() map[int]BindingDecl {
	return s.bindings
}

func (s *shader) PushConstantCount() int {
	return s.pushConstants
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}

func (s *shader) Kernel() (string, error) {
	s.kernelOnce.Do(func() {
		pp := NewPreProcessor(s.includes)
		s.kernel, s.kernelErr = pp.Process(s.source)
		if s.kernelErr != nil {
			s.kernelErr = fmt.Errorf("shader %s: %w", s.key, s.kernelErr)
		}
	})
	return s.kernel, s.kernelErr
}

// parse walks the descriptor line by line and applies every annotation.
func (s *shader) parse() error {
	for i, line := range strings.Split(s.source, "\n") {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return err
		}
		if a == nil {
			continue
		}
		switch a.Type {
		case AnnotationTypeEntry:
			if s.entryPoint != "" {
				return fmt.Errorf("line %d: duplicate entry point", a.Line)
			}
			s.entryPoint = string(a.Args[0])
		case AnnotationTypeWorkgroupSize:
			if s.shaderType != ShaderTypeCompute {
				return fmt.Errorf("line %d: workgroup_size on a non-compute shader", a.Line)
			}
			for d := range 3 {
				n, _ := strconv.ParseUint(string(a.Args[d]), 10, 32)
				s.workGroupSize[d] = uint32(n)
			}
		case AnnotationTypeBinding:
			slot := *a.Binding
			if _, dup := s.bindings[slot]; dup {
				return fmt.Errorf("line %d: slot %d declared twice", a.Line, slot)
			}
			decl := BindingDecl{
				Slot:      slot,
				Kind:      a.Args[0],
				ReadWrite: a.Args[1] == AnnotationArgReadWrite,
				Name:      string(a.Args[2]),
			}
			if len(a.Args) > 3 {
				decl.Element = string(a.Args[3])
			}
			s.bindings[slot] = decl
		case AnnotationTypePushConstants:
			n, _ := strconv.Atoi(string(a.Args[0]))
			s.pushConstants = n
		}
		s.declarations = append(s.declarations, *a)
	}
	if s.entryPoint == "" {
		return errors.New("missing @oxy:entry annotation")
	}
	return nil
}
