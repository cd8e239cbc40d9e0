// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans a pass
// descriptor for @oxy: annotations and replaces them with WGSL: bindings become
// @group(0) variable declarations, the workgroup size and push constants become
// module constants and accessors, and includes splice shared WGSL files from the
// shader directory. Lines without annotations pass through unchanged, so the kernel
// body written below the annotations is compiled as-is.
package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

// PushConstantGroup is the bind group the WGSL backend binds push constants at. Bind group 0
// holds the numbered slots.
const PushConstantGroup = 1

// MaxPushConstants is how many 32-bit push constants fit in one push constant block.
const MaxPushConstants = 64

// includeExt is the extension of files pulled in by @oxy:include.
const includeExt = ".wgsl"

// ErrIncludeNotFound is returned when an @oxy:include names a file that does not exist.
var ErrIncludeNotFound = errors.New("shader: include not found")

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// includes is the directory @oxy:include resolves against.
	includes fs.FS

	// included holds the files already spliced into the current kernel.
	included map[string]bool

	// declarations accumulates binding and push constant annotations during a Process call.
	declarations []Annotation
}

// PreProcessor turns a pass descriptor into a WGSL module, collecting the binding
// declarations it generated code for.
type PreProcessor interface {
	// Process expands every @oxy: annotation of source into WGSL.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the descriptor text
	//
	// Returns:
	//   - string: the WGSL module
	//   - error: a malformed annotation, a uniform without element type, or a missing include
	Process(source string) (string, error)

	// Declarations returns the binding and push constant annotations collected during the most
	// recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that resolves includes against the given directory.
//
// Parameters:
//   - includes: the shader directory, or nil when the source has no includes
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(includes fs.FS) PreProcessor {
	return &preProcessor{includes: includes}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	p.included = make(map[string]bool)

	var out strings.Builder
	if err := p.process(&out, source, ""); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

// process expands source into out. file names the include being expanded, empty for the
// descriptor itself.
func (p *preProcessor) process(out *strings.Builder, source, file string) error {
	for i, line := range strings.Split(source, "\n") {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return inFile(file, err)
		}
		if a == nil {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		switch a.Type {
		case AnnotationTypeEntry:
			fmt.Fprintf(out, "// entry point: %s\n", a.Args[0])
		case AnnotationTypeWorkgroupSize:
			for d, axis := range []string{"X", "Y", "Z"} {
				fmt.Fprintf(out, "const WORKGROUP_SIZE_%s: u32 = %su;\n", axis, a.Args[d])
			}
		case AnnotationTypeBinding:
			decl, err := bindingDeclaration(a)
			if err != nil {
				return inFile(file, err)
			}
			out.WriteString(decl)
			out.WriteByte('\n')
			p.declarations = append(p.declarations, *a)
		case AnnotationTypePushConstants:
			n, _ := strconv.Atoi(string(a.Args[0]))
			if n > MaxPushConstants {
				return inFile(file, fmt.Errorf("line %d: %d push constants, at most %d", a.Line, n, MaxPushConstants))
			}
			out.WriteString(pushConstantBlock(n))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeInclude:
			if err := p.include(out, string(a.Args[0]), a.Line); err != nil {
				return inFile(file, err)
			}
		}
	}
	return nil
}

// include splices <name>.wgsl into out once per kernel. Included files may include others.
func (p *preProcessor) include(out *strings.Builder, name string, line int) error {
	if p.included[name] {
		return nil
	}
	if p.includes == nil {
		return fmt.Errorf("line %d: %w: %s (no shader directory)", line, ErrIncludeNotFound, name)
	}
	file := path.Clean(name + includeExt)
	data, err := fs.ReadFile(p.includes, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("line %d: %w: %s", line, ErrIncludeNotFound, file)
		}
		return fmt.Errorf("line %d: reading %s: %w", line, file, err)
	}
	p.included[name] = true
	fmt.Fprintf(out, "// ---- %s ----\n", file)
	return p.process(out, string(data), file)
}

// bindingDeclaration generates the @group(0) declaration of one binding annotation.
//
// Storage slots default to array<u32> when read-only and array<atomic<u32>> when writable, image
// slots to array<vec4<f32>> (one RGBA32F texel per element, row-major). A uniform slot names its
// block type through the element argument.
func bindingDeclaration(a *Annotation) (string, error) {
	slot := *a.Binding
	kind, access, name := a.Args[0], a.Args[1], string(a.Args[2])
	element := ""
	if len(a.Args) > 3 {
		element = string(a.Args[3])
	}

	switch kind {
	case AnnotationArgUniform:
		if element == "" {
			return "", fmt.Errorf("line %d: uniform slot %d needs an element type", a.Line, slot)
		}
		return fmt.Sprintf("@group(0) @binding(%d) var<uniform> %s: %s;", slot, name, element), nil
	case AnnotationArgImage:
		if element == "" {
			element = "vec4<f32>"
		}
	default:
		if element == "" {
			element = "u32"
			if access == AnnotationArgReadWrite {
				element = "atomic<u32>"
			}
		}
	}

	space := "read"
	if access == AnnotationArgReadWrite {
		space = "read_write"
	}
	return fmt.Sprintf("@group(0) @binding(%d) var<storage, %s> %s: array<%s>;", slot, space, name, element), nil
}

// pushConstantBlock generates the uniform block push constants are read from and its accessor.
// Uniform arrays have a 16-byte stride, so four constants share one vec4.
func pushConstantBlock(n int) string {
	if n == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "@group(%d) @binding(0) var<uniform> push_constants: array<vec4<u32>, %d>;\n", PushConstantGroup, (n+3)/4)
	b.WriteString("fn push_constant(i: u32) -> u32 {\n")
	b.WriteString("    return push_constants[i / 4u][i % 4u];\n")
	b.WriteString("}\n")
	return b.String()
}

func inFile(file string, err error) error {
	if file == "" {
		return err
	}
	return fmt.Errorf("%s: %w", file, err)
}
