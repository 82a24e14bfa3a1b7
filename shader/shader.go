// Package shader holds SPIR-V shader code keyed by pipeline stage.
//
// Code comes from two places: precompiled *.vert.spv / *.frag.spv files
// loaded with [Load], or WGSL compiled in-process by naga with [Compile].
// [Builtin] compiles the engine's default vertex-colored shader.
package shader

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/naga"
)

// Errors returned while loading or validating shader code.
var (
	// ErrInvalidSPIRV is returned for code that is not a SPIR-V module.
	ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V")

	// ErrMissingStage is returned when a Set lacks code for a stage.
	ErrMissingStage = errors.New("shader: missing stage")

	// ErrAmbiguousStage is returned by Load when a directory holds more
	// than one file for a stage.
	ErrAmbiguousStage = errors.New("shader: more than one file for stage")
)

const spirvMagic = 0x07230203

// BuiltinSource is the WGSL source of the default shader. Its vertex
// entry point is vs_main and its fragment entry point fs_main.
//
//go:embed builtin.wgsl
var BuiltinSource string

// Stage is a programmable pipeline stage.
type Stage int

const (
	Vertex Stage = iota
	Fragment
)

func (s Stage) String() string {
	switch s {
	case Vertex:
		return "vertex"
	case Fragment:
		return "fragment"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// ext returns the file suffix used for the stage by Load.
func (s Stage) ext() string {
	if s == Fragment {
		return ".frag.spv"
	}
	return ".vert.spv"
}

// Module is SPIR-V code and the entry point to run.
type Module struct {
	Code  []byte
	Entry string
}

// Set is the shader code of a graphics pipeline.
type Set struct {
	Vertex   Module
	Fragment Module
}

// Stage returns the module for st.
func (s Set) Stage(st Stage) Module {
	if st == Fragment {
		return s.Fragment
	}
	return s.Vertex
}

// Validate checks that both stages hold well-formed SPIR-V and name an
// entry point.
func (s Set) Validate() error {
	for _, st := range []Stage{Vertex, Fragment} {
		m := s.Stage(st)
		if len(m.Code) == 0 || m.Entry == "" {
			return fmt.Errorf("%w: %s", ErrMissingStage, st)
		}
		if err := Validate(m.Code); err != nil {
			return fmt.Errorf("%s: %w", st, err)
		}
	}
	return nil
}

// Validate checks the SPIR-V header of code: a whole number of 32-bit
// words starting with the little-endian magic number.
func Validate(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(code))
	}
	if m := binary.LittleEndian.Uint32(code); m != spirvMagic {
		return fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, m)
	}
	return nil
}

// Load reads one *.vert.spv and one *.frag.spv file from dir. Both use
// the entry point "main".
func Load(dir string) (Set, error) {
	var set Set
	for _, st := range []Stage{Vertex, Fragment} {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+st.ext()))
		if err != nil {
			return Set{}, fmt.Errorf("shader: %w", err)
		}
		switch len(matches) {
		case 0:
			return Set{}, fmt.Errorf("%w: no %s file in %s", ErrMissingStage, st.ext(), dir)
		case 1:
		default:
			return Set{}, fmt.Errorf("%w %s: %v", ErrAmbiguousStage, st, matches)
		}
		code, err := os.ReadFile(matches[0])
		if err != nil {
			return Set{}, fmt.Errorf("shader: %w", err)
		}
		m := Module{Code: code, Entry: "main"}
		if st == Vertex {
			set.Vertex = m
		} else {
			set.Fragment = m
		}
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Compile compiles WGSL source into a single SPIR-V module shared by both
// stages.
func Compile(source, vertexEntry, fragmentEntry string) (Set, error) {
	return compileWith(naga.Compile, source, vertexEntry, fragmentEntry)
}

func compileWith(compile func(string) ([]byte, error), source, vertexEntry, fragmentEntry string) (Set, error) {
	code, err := compile(source)
	if err != nil {
		return Set{}, fmt.Errorf("shader: compile: %w", err)
	}
	set := Set{
		Vertex:   Module{Code: code, Entry: vertexEntry},
		Fragment: Module{Code: code, Entry: fragmentEntry},
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Builtin compiles BuiltinSource. The result is cached for the life of
// the process and must not be modified.
func Builtin() (Set, error) {
	return builtinCache.Compile(BuiltinSource, "vs_main", "fs_main")
}

// WriteFiles writes the two stages of s to dir as <name>.vert.spv and
// <name>.frag.spv, in the layout Load reads.
func WriteFiles(s Set, dir, name string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, st := range []Stage{Vertex, Fragment} {
		path := filepath.Join(dir, name+st.ext())
		if err := os.WriteFile(path, s.Stage(st).Code, 0o644); err != nil { //nolint:gosec // shader blobs are not secret
			return fmt.Errorf("shader: %w", err)
		}
	}
	return nil
}
