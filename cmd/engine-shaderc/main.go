// Command engine-shaderc compiles a WGSL program into the vertex and
// fragment SPIR-V files the engine loads with shader.Load.
//
// Usage:
//
//	engine-shaderc [options] [input.wgsl]
//
// Examples:
//
//	engine-shaderc -o spv                      # Compile the built-in shaders
//	engine-shaderc -o spv -name lit lit.wgsl   # Writes spv/lit.vert.spv, spv/lit.frag.spv
//	engine-shaderc -check lit.wgsl             # Compile only
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gogpu/engine/shader"
)

var (
	outDir  = flag.String("o", ".", "output directory")
	name    = flag.String("name", "builtin", "output file name stem")
	vsEntry = flag.String("vs", "vs_main", "vertex entry point")
	fsEntry = flag.String("fs", "fs_main", "fragment entry point")
	check   = flag.Bool("check", false, "compile without writing output")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	source := shader.BuiltinSource
	inputPath := "<builtin>"
	switch args := flag.Args(); len(args) {
	case 0:
	case 1:
		inputPath = args[0]
		b, err := os.ReadFile(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		source = string(b)
	default:
		fmt.Fprintln(os.Stderr, "Error: more than one input file")
		usage()
		os.Exit(1)
	}

	set, err := shader.Compile(source, *vsEntry, *fsEntry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
		os.Exit(1)
	}
	if *check {
		fmt.Printf("%s: ok (%d bytes)\n", inputPath, len(set.Vertex.Code))
		return
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil { //nolint:gosec // output directory is user-chosen
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	if err := shader.WriteFiles(set, *outDir, *name); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully compiled %s to %s/%s.{vert,frag}.spv\n", inputPath, *outDir, *name)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: engine-shaderc [options] [input.wgsl]\n\n")
	fmt.Fprintf(os.Stderr, "Compiles the built-in shaders when no input is given.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nLoad the output with engine-demo -shaders <dir> -vs <entry> -fs <entry>.\n")
}
