// annotations.go defines the annotation types, argument constants, and parser for
// shader pass descriptors. Annotations are single-line comments prefixed with @oxy:
// that declare the program entry point, the workgroup size, the numbered binding slots
// with their access mode, the push constant count and the WGSL files a kernel includes.
// The parsed results are stored as Annotation values, consumed by the Renderer to
// validate bind groups at dispatch and by the PreProcessor to generate WGSL.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a descriptor line.
type AnnotationType string

const (
	// AnnotationTypeEntry names the device program that implements the shader.
	//
	// Syntax: //@oxy:entry <program>
	//
	// Example: //@oxy:entry NodeAndClusterCull
	AnnotationTypeEntry AnnotationType = "entry"

	// AnnotationTypeWorkgroupSize declares the invocation count of one compute workgroup.
	//
	// Syntax: //@oxy:workgroup_size <x> <y> <z>
	//
	// Example: //@oxy:workgroup_size 8 8 1
	AnnotationTypeWorkgroupSize AnnotationType = "workgroup_size"

	// AnnotationTypeBinding declares one numbered resource slot of the pass. The optional
	// element names the WGSL type of one array element (storage, image) or of the whole
	// block (uniform, where it is required by the WGSL backend).
	//
	// Syntax: //@oxy:binding <slot> <kind> <access> <name> [element]
	//
	// Example: //@oxy:binding 4 storage read_write out_queue
	//
	// Example: //@oxy:binding 3 storage read_write vis_buffer atomic<u64>
	AnnotationTypeBinding AnnotationType = "binding"

	// AnnotationTypePushConstants declares how many 32-bit push constants the pass reads.
	//
	// Syntax: //@oxy:push_constants <count>
	AnnotationTypePushConstants AnnotationType = "push_constants"

	// AnnotationTypeInclude splices <name>.wgsl from the shader directory into the kernel.
	// Each file is included at most once per kernel.
	//
	// Syntax: //@oxy:include <name>
	//
	// Example: //@oxy:include frame_constants
	AnnotationTypeInclude AnnotationType = "include"
)

// Annotation represents a single parsed @oxy: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - entry:          [0] = program name
	//   - workgroup_size: [0..2] = x, y, z
	//   - binding:        [0] = kind, [1] = access, [2] = name, [3] = element (optional)
	//   - push_constants: [0] = count
	//   - include:        [0] = file name without extension
	Args []AnnotationArg

	// Line is the 1-based line number in the descriptor where this annotation was found.
	Line int

	// Binding is the slot index for binding annotations. Nil otherwise.
	Binding *int
}

// AnnotationArg is a typed string used as an argument in annotations.
type AnnotationArg string

// ── Binding kind arguments ─────────────────────────────────────────────────────

const (
	// AnnotationArgStorage declares a storage buffer slot.
	AnnotationArgStorage AnnotationArg = "storage"

	// AnnotationArgUniform declares a uniform buffer slot. Its access is always "read".
	AnnotationArgUniform AnnotationArg = "uniform"

	// AnnotationArgImage declares a storage image slot.
	AnnotationArgImage AnnotationArg = "image"
)

// ── Access arguments ───────────────────────────────────────────────────────────

const (
	// AnnotationArgRead declares a read-only slot.
	AnnotationArgRead AnnotationArg = "read"

	// AnnotationArgReadWrite declares a slot the pass writes or updates atomically.
	AnnotationArgReadWrite AnnotationArg = "read_write"
)

var validBindingKinds = []AnnotationArg{
	AnnotationArgStorage,
	AnnotationArgUniform,
	AnnotationArgImage,
}

var validAccessModes = []AnnotationArg{
	AnnotationArgRead,
	AnnotationArgReadWrite,
}

// parseAnnotation attempts to parse a single descriptor line as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeEntry:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy entry annotation requires exactly one argument", lineNum)
		}
		return &Annotation{Type: AnnotationTypeEntry, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil
	case AnnotationTypeWorkgroupSize:
		if len(args) != 4 {
			return nil, fmt.Errorf("line %d: @oxy workgroup_size annotation requires three dimensions", lineNum)
		}
		out := make([]AnnotationArg, 0, 3)
		for _, a := range args[1:] {
			n, err := strconv.ParseUint(a, 10, 32)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("line %d: invalid workgroup dimension %q", lineNum, a)
			}
			out = append(out, AnnotationArg(a))
		}
		return &Annotation{Type: AnnotationTypeWorkgroupSize, Args: out, Line: lineNum}, nil
	case AnnotationTypeBinding:
		if len(args) != 5 && len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy binding annotation requires four or five arguments (slot, kind, access, name, [element])", lineNum)
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil || slot < 0 {
			return nil, fmt.Errorf("line %d: invalid binding slot %q", lineNum, args[1])
		}
		if !slices.Contains(validBindingKinds, AnnotationArg(args[2])) {
			return nil, fmt.Errorf("line %d: unknown binding kind %q", lineNum, args[2])
		}
		if !slices.Contains(validAccessModes, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown access mode %q", lineNum, args[3])
		}
		if AnnotationArg(args[2]) == AnnotationArgUniform && AnnotationArg(args[3]) != AnnotationArgRead {
			return nil, fmt.Errorf("line %d: uniform slot %d must be read-only", lineNum, slot)
		}
		out := make([]AnnotationArg, 0, 4)
		for _, a := range args[2:] {
			out = append(out, AnnotationArg(a))
		}
		return &Annotation{
			Type:    AnnotationTypeBinding,
			Args:    out,
			Line:    lineNum,
			Binding: &slot,
		}, nil
	case AnnotationTypePushConstants:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy push_constants annotation requires one argument", lineNum)
		}
		if _, err := strconv.ParseUint(args[1], 10, 8); err != nil {
			return nil, fmt.Errorf("line %d: invalid push constant count %q", lineNum, args[1])
		}
		return &Annotation{Type: AnnotationTypePushConstants, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if strings.ContainsAny(args[1], "/\\.") {
			return nil, fmt.Errorf("line %d: include %q must be a bare file name", lineNum, args[1])
		}
		return &Annotation{Type: AnnotationTypeInclude, Args: []AnnotationArg{AnnotationArg(args[1])}, Line: lineNum}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
