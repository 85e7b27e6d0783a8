// 3mftool is a CLI utility for inspecting and rewriting 3MF files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Faultbox/threemf/internal/config"
	"github.com/Faultbox/threemf/internal/logger"
	"github.com/Faultbox/threemf/pkg/math"
	"github.com/Faultbox/threemf/pkg/model"
	"github.com/Faultbox/threemf/pkg/opc"
	"github.com/Faultbox/threemf/pkg/threemf"
	"github.com/Faultbox/threemf/pkg/xmldoc"
)

var cfg *config.Config

func main() {
	config.ParseFlags()

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "info":
		cmdInfo(rest)
	case "list", "ls":
		cmdList(rest)
	case "extract", "x":
		cmdExtract(rest)
	case "resolve":
		cmdResolve(rest)
	case "repack":
		cmdRepack(rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`3mftool - 3MF file utility

Usage:
  3mftool [options] <command> [arguments]

Commands:
  info <file.3mf>                   Show package and model information
  list <file.3mf>                   List package parts
  extract <file.3mf> <part> [dir]   Extract a part to a directory
  resolve <file.3mf>                Print the resolved build instances
  repack <in.3mf> <out.3mf>         Read and rewrite a file

Options:
  -config <path>     Use a specific config file
  -debug             Enable debug logging
  -precision <n>     Decimal digits for exported coordinates
  -scale <factor>    Scale factor for import and export

Examples:
  3mftool info benchy.3mf
  3mftool extract benchy.3mf Metadata/thumbnail.png ./out
  3mftool -precision 6 repack benchy.3mf clean.3mf`)
}

func openPackage(path string) *opc.Package {
	pkg, warnings, err := opc.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		logger.Sugar.Warn(w)
	}
	return pkg
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: 3mftool info <file.3mf>")
		os.Exit(1)
	}

	pkg := openPackage(args[0])

	fmt.Printf("Package: %s\n", args[0])
	fmt.Printf("Parts:   %d\n", len(pkg.Parts()))
	fmt.Printf("Rels:    %d\n", len(pkg.Relationships))

	for _, part := range pkg.ModelParts() {
		root, err := xmldoc.Parse(part.Data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Model part %s: %v\n", part.Path, err)
			continue
		}
		doc, warnings := model.ReadDocument(root)
		for _, w := range warnings {
			logger.Sugar.Warn(w)
		}

		var vertices, triangles int
		for _, obj := range doc.Objects() {
			if obj.Mesh != nil {
				vertices += len(obj.Mesh.Vertices)
				triangles += len(obj.Mesh.Triangles)
			}
		}

		fmt.Println()
		fmt.Printf("Model part: %s\n", part.Path)
		fmt.Printf("  Unit:        %s\n", doc.Unit)
		fmt.Printf("  Objects:     %d\n", len(doc.Objects()))
		fmt.Printf("  Vertices:    %d\n", vertices)
		fmt.Printf("  Triangles:   %d\n", triangles)
		fmt.Printf("  Build items: %d\n", len(doc.Build))
		if entries := doc.Metadata.Entries(); len(entries) > 0 {
			fmt.Println("  Metadata:")
			for _, entry := range entries {
				fmt.Printf("    %s = %s\n", entry.Name, entry.Value)
			}
		}
	}
}

func cmdList(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: 3mftool list <file.3mf>")
		os.Exit(1)
	}

	pkg := openPackage(args[0])

	paths := make([]string, 0, len(pkg.Parts()))
	byPath := map[string]*opc.Part{}
	for _, part := range pkg.Parts() {
		paths = append(paths, part.Path)
		byPath[part.Path] = part
	}
	sort.Strings(paths)

	for _, path := range paths {
		part := byPath[path]
		contentType := part.ContentType
		if contentType == "" {
			contentType = "(unknown)"
		}
		fmt.Printf("%-40s %8d  %s\n", part.Path, len(part.Data), contentType)
	}
}

func cmdExtract(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: 3mftool extract <file.3mf> <part> [output_dir]")
		os.Exit(1)
	}

	outputDir := "."
	if len(args) > 2 {
		outputDir = args[2]
	}

	pkg := openPackage(args[0])
	part := pkg.Part(args[1])
	if part == nil {
		fmt.Fprintf(os.Stderr, "Part not found: %s\n", args[1])
		os.Exit(1)
	}

	outputPath := filepath.Join(outputDir, filepath.Base(part.Path))
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputPath, part.Data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Extracted: %s (%d bytes)\n", outputPath, len(part.Data))
}

func cmdResolve(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: 3mftool resolve <file.3mf>")
		os.Exit(1)
	}

	pkg := openPackage(args[0])
	for _, part := range pkg.ModelParts() {
		root, err := xmldoc.Parse(part.Data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Model part %s: %v\n", part.Path, err)
			continue
		}
		doc, warnings := model.ReadDocument(root)
		instances, resolveWarnings := doc.Resolve()
		for _, w := range append(warnings, resolveWarnings...) {
			logger.Sugar.Warn(w)
		}

		for i, instance := range instances {
			fmt.Printf("item %d:\n", i)
			instance.Walk(func(inst *model.Instance) {
				kind := "group"
				if inst.Object.Mesh != nil {
					kind = fmt.Sprintf("mesh (%d triangles)", len(inst.Object.Mesh.Triangles))
				}
				name := inst.Object.Name
				if name == "" {
					name = fmt.Sprintf("object %d", inst.Object.ID)
				}
				origin := inst.Transform.TransformPoint(math.Vec3{})
				fmt.Printf("  %-24s %-22s at (%s, %s, %s)\n", name, kind,
					model.FormatNumber(origin.X, 3),
					model.FormatNumber(origin.Y, 3),
					model.FormatNumber(origin.Z, 3))
			})
		}
	}
}

func cmdRepack(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: 3mftool repack <in.3mf> <out.3mf>")
		os.Exit(1)
	}

	session := threemf.NewSession(nil)
	session.Log = logger.Sugar

	if _, err := session.Import([]string{args[0]}, threemf.ImportOptions{Scale: cfg.Import.Scale}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := threemf.DefaultExportOptions()
	opts.Scale = cfg.Export.Scale
	opts.Precision = cfg.Export.Precision
	opts.ApplyDeformations = cfg.Export.ApplyDeformations
	if _, err := session.Export(args[1], opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Repacked %s -> %s (%d objects)\n", args[0], args[1], len(session.Scene.Objects))
}
