// Package threemf is the entry point of the codec: it reads 3MF files into
// a scene and writes scenes back out, carrying metadata and package
// annotations across as many files as a session touches.
package threemf

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/threemf/pkg/math"
	"github.com/Faultbox/threemf/pkg/model"
	"github.com/Faultbox/threemf/pkg/opc"
	"github.com/Faultbox/threemf/pkg/scene"
	"github.com/Faultbox/threemf/pkg/xmldoc"
)

// ErrNoModelPart indicates a package contained no 3D model part at all.
var ErrNoModelPart = errors.New("package has no 3D model part")

// ImportOptions control how files are read into the scene.
type ImportOptions struct {
	// Scale multiplies all imported placements on top of the unit
	// conversion. Zero means 1.
	Scale float64
}

// ExportOptions is re-exported from the model package for callers that only
// import the facade.
type ExportOptions = model.ExportOptions

// DefaultExportOptions returns the standard export settings.
func DefaultExportOptions() ExportOptions {
	return model.DefaultExportOptions()
}

// Session accumulates the state shared between imports and exports: the
// scene itself, the merged document metadata and the package annotations.
// A fresh session starts empty; nothing is process-global.
type Session struct {
	Scene *scene.Scene

	// Log, when set, receives every warning the codec accumulates.
	Log *zap.SugaredLogger

	metadata    *model.Metadata
	annotations *model.Annotations
}

// NewSession returns a session around the given scene. A nil scene gets a
// fresh empty one.
func NewSession(s *scene.Scene) *Session {
	if s == nil {
		s = scene.NewScene()
	}
	return &Session{
		Scene:       s,
		metadata:    model.NewMetadata(),
		annotations: model.NewAnnotations(),
	}
}

// parsedFile is the outcome of the pure per-file phase.
type parsedFile struct {
	path     string
	pkg      *opc.Package
	docs     []*model.Document
	warnings []string
	err      error
}

// Import reads every path into the session's scene. Files are parsed on
// parallel workers; merging into the shared scene, metadata and annotations
// happens afterwards, strictly in argument order, so results do not depend
// on scheduling. A file that cannot be opened or has no model part
// contributes an error but never blocks the other files.
func (s *Session) Import(paths []string, opts ImportOptions) ([]string, error) {
	if opts.Scale == 0 {
		opts.Scale = 1
	}

	results := make([]*parsedFile, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			results[i] = parseFile(path)
		}(i, path)
	}
	wg.Wait()

	var warnings []string
	var errs []error
	for _, result := range results {
		if result.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.path, result.err))
			continue
		}
		warnings = append(warnings, prefixed(result.path, result.warnings)...)
		warnings = append(warnings, prefixed(result.path, s.merge(result, opts))...)
	}

	s.logWarnings(warnings)
	return warnings, errors.Join(errs...)
}

// parseFile does everything that needs no shared state: container, XML and
// document parsing.
func parseFile(path string) *parsedFile {
	result := &parsedFile{path: path}

	pkg, warnings, err := opc.Open(path)
	if err != nil {
		result.err = err
		return result
	}
	result.pkg = pkg
	result.warnings = warnings

	modelParts := pkg.ModelParts()
	if len(modelParts) == 0 {
		result.err = ErrNoModelPart
		return result
	}

	for _, part := range modelParts {
		root, err := xmldoc.Parse(part.Data)
		if err != nil {
			result.err = fmt.Errorf("model part %s: %w", part.Path, err)
			return result
		}
		doc, docWarnings := model.ReadDocument(root)
		result.docs = append(result.docs, doc)
		result.warnings = append(result.warnings, docWarnings...)
	}

	return result
}

// merge folds one parsed file into the session.
func (s *Session) merge(file *parsedFile, opts ImportOptions) []string {
	warnings := s.annotations.Collect(file.pkg)

	for _, doc := range file.docs {
		warnings = append(warnings, s.metadata.Merge(doc.Metadata)...)

		unitScale, _ := model.UnitScale(doc.Unit)
		factor := unitScale / s.Scene.UnitScale * opts.Scale

		instances, resolveWarnings := doc.Resolve()
		warnings = append(warnings, resolveWarnings...)
		toScene := math.UniformScale(factor)
		for _, instance := range instances {
			root := s.convert(doc, instance, toScene)
			root.Transform = toScene.Mul(instance.Transform)
			s.Scene.Objects = append(s.Scene.Objects, root)
		}
	}

	return warnings
}

// convert turns one resolved instance subtree into scene objects. toScene
// maps document space to scene space; each object stores its transform
// relative to its parent, the caller fixes up the root's placement.
func (s *Session) convert(doc *model.Document, instance *model.Instance, toScene math.Mat4) *scene.Object {
	src := instance.Object

	name := src.Name
	if name == "" {
		name = fmt.Sprintf("3MF Object %d", src.ID)
	}
	obj := scene.NewObject(name)
	obj.PartNumber = instance.PartNumber
	obj.Hidden = src.IsSupport()

	if entries := src.Metadata.Entries(); len(entries) > 0 || src.Type != model.ObjectTypeModel {
		obj.Metadata = make(map[string]scene.MetadataEntry, len(entries)+1)
		for _, entry := range entries {
			obj.Metadata[entry.Name] = scene.MetadataEntry{
				Value:    entry.Value,
				Type:     entry.Type,
				Preserve: entry.Preserve,
			}
		}
		if src.Type != model.ObjectTypeModel {
			// Park the type so a later export can restore the attribute.
			obj.Metadata[model.ObjectTypeMetadata] = scene.MetadataEntry{Value: src.Type}
		}
	}

	if src.Mesh != nil {
		obj.Mesh = s.convertMesh(doc, src)
		if material := doc.Material(src.PID, src.PIndex); material != nil {
			obj.Material = s.addMaterial(material)
		}
	}

	// Resolved transforms are document-space worlds; the scene tree wants
	// them relative to the parent, both mapped through toScene.
	inverse := toScene.Mul(instance.Transform).Inverse()
	for _, child := range instance.Children {
		childObj := s.convert(doc, child, toScene)
		childObj.Transform = inverse.Mul(toScene.Mul(child.Transform))
		obj.AddChild(childObj)
	}

	return obj
}

func (s *Session) convertMesh(doc *model.Document, src *model.Object) *scene.Mesh {
	mesh := &scene.Mesh{
		Vertices:  append([]math.Vec3(nil), src.Mesh.Vertices...),
		Triangles: make([]scene.Triangle, 0, len(src.Mesh.Triangles)),
	}
	for _, t := range src.Mesh.Triangles {
		triangle := scene.Triangle{
			V1:       t.Indices[0],
			V2:       t.Indices[1],
			V3:       t.Indices[2],
			Material: scene.NoMaterial,
		}
		if material := doc.TriangleMaterial(src, t); material != nil {
			triangle.Material = s.addMaterial(material)
		}
		mesh.Triangles = append(mesh.Triangles, triangle)
	}
	return mesh
}

func (s *Session) addMaterial(m *model.Material) int {
	material := scene.Material{Name: m.Name}
	if m.Color.Valid {
		material.Color = [4]float64{m.Color.R, m.Color.G, m.Color.B, m.Color.A}
		material.HasColor = true
	}
	return s.Scene.AddMaterial(material)
}

// Export writes the session's scene to one 3MF file, carrying the merged
// metadata and every annotated part along.
func (s *Session) Export(path string, opts ExportOptions) ([]string, error) {
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.Precision == 0 {
		opts.Precision = DefaultExportOptions().Precision
	}

	doc, warnings := model.BuildDocument(s.Scene, opts)
	warnings = append(warnings, doc.Metadata.Merge(s.metadata)...)

	data, err := xmldoc.Marshal(doc.XML(opts.Precision))
	if err != nil {
		return warnings, fmt.Errorf("serializing model: %w", err)
	}

	pkg := opc.NewPackage()
	pkg.AddPart(opc.DefaultModelPath, opc.ModelContentType, data)
	warnings = append(warnings, s.annotations.Apply(pkg)...)

	archive, err := pkg.Write()
	if err != nil {
		return warnings, fmt.Errorf("writing package: %w", err)
	}
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		return warnings, fmt.Errorf("writing file: %w", err)
	}

	s.logWarnings(warnings)
	return warnings, nil
}

func prefixed(path string, warnings []string) []string {
	result := make([]string, 0, len(warnings))
	for _, w := range warnings {
		result = append(result, path+": "+w)
	}
	return result
}

func (s *Session) logWarnings(warnings []string) {
	if s.Log == nil {
		return
	}
	for _, w := range warnings {
		s.Log.Warn(w)
	}
}
