package model

import (
	"fmt"
	"sort"

	"github.com/Faultbox/threemf/pkg/math"
	"github.com/Faultbox/threemf/pkg/scene"
	"github.com/Faultbox/threemf/pkg/xmldoc"
)

// ObjectTypeMetadata is the metadata key the importer parks an object's
// type attribute under, so that a round trip keeps it.
const ObjectTypeMetadata = "3mf:object_type"

// ExportOptions control how a scene becomes a document.
type ExportOptions struct {
	// SelectionOnly exports only root objects marked selected.
	SelectionOnly bool

	// Scale multiplies all placements on top of the scene's unit scale.
	Scale float64

	// ApplyDeformations bakes the evaluated mesh instead of the base mesh
	// where one is present.
	ApplyDeformations bool

	// Precision is the number of decimal digits for coordinates and
	// transforms.
	Precision int
}

// DefaultExportOptions returns the options Export uses when the caller
// passes the zero value.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Scale: 1, ApplyDeformations: true, Precision: 4}
}

// BuildDocument turns a scene into a fresh millimeter document. Resource
// IDs are dense and start at 1 on every call; nothing leaks between calls.
func BuildDocument(s *scene.Scene, opts ExportOptions) (*Document, []string) {
	if opts.Scale == 0 {
		opts.Scale = 1
	}

	e := &exporter{
		doc:           NewDocument(),
		scene:         s,
		opts:          opts,
		nextID:        1,
		materialIndex: make(map[int]int),
	}

	roots := e.exportedRoots()
	e.buildMaterialGroup(roots)

	scale := opts.Scale * s.UnitScale
	placement := math.UniformScale(scale)
	for _, root := range roots {
		id := e.writeObject(root)
		if id == 0 {
			continue
		}
		e.doc.Build = append(e.doc.Build, BuildItem{
			ObjectID:   id,
			Transform:  placement.Mul(root.Transform),
			PartNumber: root.PartNumber,
		})
	}

	return e.doc, e.warnings
}

type exporter struct {
	doc      *Document
	scene    *scene.Scene
	opts     ExportOptions
	nextID   int
	warnings []string

	group         *MaterialGroup
	materialIndex map[int]int // scene material index -> pindex
}

func (e *exporter) exportedRoots() []*scene.Object {
	var roots []*scene.Object
	for _, root := range e.scene.Objects {
		if e.opts.SelectionOnly && !root.Selected {
			continue
		}
		roots = append(roots, root)
	}
	return roots
}

// buildMaterialGroup collects every material the exported objects use, in
// order of first use, into one basematerials group. The group takes the
// first resource ID so objects can reference it.
func (e *exporter) buildMaterialGroup(roots []*scene.Object) {
	var used []int
	seen := map[int]bool{}
	note := func(index int) {
		if index < 0 || index >= len(e.scene.Materials) || seen[index] {
			return
		}
		seen[index] = true
		used = append(used, index)
	}

	for _, root := range roots {
		root.Walk(func(o *scene.Object) {
			mesh := e.meshOf(o)
			if mesh == nil {
				return
			}
			for _, t := range mesh.Triangles {
				note(e.effectiveMaterial(o, t))
			}
		})
	}
	if len(used) == 0 {
		return
	}

	e.group = &MaterialGroup{ID: e.nextID}
	e.nextID++
	for _, index := range used {
		m := e.scene.Materials[index]
		e.materialIndex[index] = len(e.group.Materials)
		material := Material{Name: m.Name}
		if m.HasColor {
			material.Color = Color{R: m.Color[0], G: m.Color[1], B: m.Color[2], A: m.Color[3], Valid: true}
		}
		e.group.Materials = append(e.group.Materials, material)
	}
	e.doc.AddMaterialGroup(e.group)
}

func (e *exporter) meshOf(o *scene.Object) *scene.Mesh {
	if e.opts.ApplyDeformations && o.Evaluated != nil {
		return o.Evaluated
	}
	return o.Mesh
}

func (e *exporter) effectiveMaterial(o *scene.Object, t scene.Triangle) int {
	if t.Material != scene.NoMaterial {
		return t.Material
	}
	return o.Material
}

// writeObject emits the object resources for one scene node and returns
// the resource ID the caller should reference, 0 when the node produced
// nothing. A node with both geometry and children becomes a components
// object whose mesh moves into a separate mesh-only resource.
func (e *exporter) writeObject(node *scene.Object) int {
	mesh := e.meshOf(node)
	hasMesh := mesh != nil && len(mesh.Triangles) > 0

	if len(node.Children) == 0 {
		if !hasMesh {
			return 0
		}
		obj := e.newObject(node)
		e.fillMesh(obj, node, mesh)
		e.doc.AddObject(obj)
		return obj.ID
	}

	var components []Component
	if hasMesh {
		meshObj := e.newObject(node)
		e.fillMesh(meshObj, node, mesh)
		e.doc.AddObject(meshObj)
		components = append(components, Component{
			ObjectID:  meshObj.ID,
			Transform: math.Identity(),
		})
	}
	for _, child := range node.Children {
		childID := e.writeObject(child)
		if childID == 0 {
			continue
		}
		components = append(components, Component{
			ObjectID:  childID,
			Transform: child.Transform,
		})
	}
	if len(components) == 0 {
		return 0
	}

	obj := e.newObject(node)
	obj.Components = components
	e.doc.AddObject(obj)
	return obj.ID
}

// newObject allocates the next resource ID and carries the node's name,
// part number, type and metadata over.
func (e *exporter) newObject(node *scene.Object) *Object {
	obj := NewObject(e.nextID)
	e.nextID++
	obj.Name = node.Name
	obj.PartNumber = node.PartNumber

	names := make([]string, 0, len(node.Metadata))
	for name := range node.Metadata {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := node.Metadata[name]
		if name == ObjectTypeMetadata {
			// The parked type goes back into the attribute, not metadata.
			if objectTypes[entry.Value] {
				obj.Type = entry.Value
			}
			continue
		}
		obj.Metadata.Store(Entry{
			Name:     name,
			Value:    entry.Value,
			Type:     entry.Type,
			Preserve: entry.Preserve,
		})
	}
	if obj.Type == ObjectTypeOther {
		// "other" may not be referenced from a build item, normalize it.
		obj.Type = ObjectTypeModel
	}
	return obj
}

// fillMesh copies the geometry and assigns materials: the most common
// material becomes the object default, triangles deviating from it get
// per-triangle overrides.
func (e *exporter) fillMesh(obj *Object, node *scene.Object, mesh *scene.Mesh) {
	out := &Mesh{Vertices: append([]math.Vec3(nil), mesh.Vertices...)}

	counts := map[int]int{}
	for i, t := range mesh.Triangles {
		if !validTriangle(t, len(mesh.Vertices)) {
			e.warnings = append(e.warnings, fmt.Sprintf(
				"object %q triangle %d has invalid vertex indices, dropping it", node.Name, i))
			continue
		}
		if index := e.effectiveMaterial(node, t); index != scene.NoMaterial {
			counts[index]++
		}
	}

	defaultMaterial := scene.NoMaterial
	bestCount := 0
	for index, count := range counts {
		if count > bestCount || (count == bestCount && index < defaultMaterial) {
			defaultMaterial, bestCount = index, count
		}
	}
	if defaultMaterial != scene.NoMaterial {
		obj.PID = e.group.ID
		obj.PIndex = e.materialIndex[defaultMaterial]
	}

	for _, t := range mesh.Triangles {
		if !validTriangle(t, len(mesh.Vertices)) {
			continue
		}
		triangle := Triangle{Indices: [3]int{t.V1, t.V2, t.V3}, PID: NoMaterial, P1: NoMaterial}
		if index := e.effectiveMaterial(node, t); index != scene.NoMaterial && index != defaultMaterial {
			triangle.PID = e.group.ID
			triangle.P1 = e.materialIndex[index]
		}
		out.Triangles = append(out.Triangles, triangle)
	}

	obj.Mesh = out
}

func validTriangle(t scene.Triangle, vertexCount int) bool {
	for _, index := range []int{t.V1, t.V2, t.V3} {
		if index < 0 || index >= vertexCount {
			return false
		}
	}
	return t.V1 != t.V2 && t.V2 != t.V3 && t.V1 != t.V3
}

// XML serializes the document as a model part element tree.
func (d *Document) XML(precision int) *xmldoc.Element {
	root := &xmldoc.Element{Space: CoreNamespace, Name: "model"}
	root.SetAttr("unit", d.Unit)

	writeMetadata(root, d.Metadata)

	resources := root.Add(CoreNamespace, "resources")
	for _, group := range d.MaterialGroups() {
		node := resources.Add(CoreNamespace, "basematerials")
		node.SetAttr("id", fmt.Sprintf("%d", group.ID))
		for _, material := range group.Materials {
			base := node.Add(CoreNamespace, "base")
			base.SetAttr("name", material.Name)
			if material.Color.Valid {
				base.SetAttr("displaycolor", material.Color.FormatColor())
			}
		}
	}
	for _, obj := range d.Objects() {
		writeObjectXML(resources, obj, precision)
	}

	build := root.Add(CoreNamespace, "build")
	for _, item := range d.Build {
		node := build.Add(CoreNamespace, "item")
		node.SetAttr("objectid", fmt.Sprintf("%d", item.ObjectID))
		if !item.Transform.IsIdentity() {
			node.SetAttr("transform", FormatTransform(item.Transform, precision))
		}
		if item.PartNumber != "" {
			node.SetAttr("partnumber", item.PartNumber)
		}
	}

	return root
}

func writeMetadata(parent *xmldoc.Element, metadata *Metadata) {
	for _, entry := range metadata.Entries() {
		node := parent.Add(CoreNamespace, "metadata")
		node.SetAttr("name", entry.Name)
		if entry.Preserve {
			node.SetAttr("preserve", "1")
		}
		if entry.Type != "" {
			node.SetAttr("type", entry.Type)
		}
		node.Text = entry.Value
	}
}

func writeObjectXML(resources *xmldoc.Element, obj *Object, precision int) {
	node := resources.Add(CoreNamespace, "object")
	node.SetAttr("id", fmt.Sprintf("%d", obj.ID))
	if obj.Type != ObjectTypeModel {
		node.SetAttr("type", obj.Type)
	}
	if obj.Name != "" {
		node.SetAttr("name", obj.Name)
	}
	if obj.PartNumber != "" {
		node.SetAttr("partnumber", obj.PartNumber)
	}
	if obj.PID != NoMaterial && obj.PIndex != NoMaterial {
		node.SetAttr("pid", fmt.Sprintf("%d", obj.PID))
		node.SetAttr("pindex", fmt.Sprintf("%d", obj.PIndex))
	}

	if obj.Metadata.Len() > 0 {
		writeMetadata(node.Add(CoreNamespace, "metadatagroup"), obj.Metadata)
	}

	if obj.Mesh != nil {
		mesh := node.Add(CoreNamespace, "mesh")
		vertices := mesh.Add(CoreNamespace, "vertices")
		for _, v := range obj.Mesh.Vertices {
			vertex := vertices.Add(CoreNamespace, "vertex")
			vertex.SetAttr("x", FormatNumber(v.X, precision))
			vertex.SetAttr("y", FormatNumber(v.Y, precision))
			vertex.SetAttr("z", FormatNumber(v.Z, precision))
		}
		triangles := mesh.Add(CoreNamespace, "triangles")
		for _, t := range obj.Mesh.Triangles {
			triangle := triangles.Add(CoreNamespace, "triangle")
			triangle.SetAttr("v1", fmt.Sprintf("%d", t.Indices[0]))
			triangle.SetAttr("v2", fmt.Sprintf("%d", t.Indices[1]))
			triangle.SetAttr("v3", fmt.Sprintf("%d", t.Indices[2]))
			if t.PID != NoMaterial && t.P1 != NoMaterial {
				triangle.SetAttr("pid", fmt.Sprintf("%d", t.PID))
				triangle.SetAttr("p1", fmt.Sprintf("%d", t.P1))
			}
		}
	}

	if len(obj.Components) > 0 {
		components := node.Add(CoreNamespace, "components")
		for _, component := range obj.Components {
			child := components.Add(CoreNamespace, "component")
			child.SetAttr("objectid", fmt.Sprintf("%d", component.ObjectID))
			if !component.Transform.IsIdentity() {
				child.SetAttr("transform", FormatTransform(component.Transform, precision))
			}
		}
	}
}
