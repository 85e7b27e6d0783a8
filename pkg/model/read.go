package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/threemf/pkg/math"
	"github.com/Faultbox/threemf/pkg/xmldoc"
)

// ReadDocument builds a document from a parsed model part. The document is
// never nil; everything that cannot be salvaged is dropped with a warning
// and the remainder stands.
func ReadDocument(root *xmldoc.Element) (*Document, []string) {
	doc := NewDocument()
	var warnings []string

	if root.Space != CoreNamespace || root.Name != "model" {
		warnings = append(warnings, fmt.Sprintf(
			"root element is %s, not a 3MF model; nothing imported", root.Name))
		return doc, warnings
	}

	if unit := root.AttrOr("unit", DefaultUnit); unit != "" {
		if _, known := UnitScale(unit); known {
			doc.Unit = unit
		} else {
			warnings = append(warnings, fmt.Sprintf(
				"unknown unit %q, assuming %s", unit, DefaultUnit))
		}
	}

	if required := strings.Fields(root.AttrOr("requiredextensions", "")); len(required) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"model requires extensions (%s) that may not be fully supported, importing anyway",
			strings.Join(required, ", ")))
	}

	warnings = append(warnings, readMetadataInto(doc.Metadata, root)...)

	if resources := root.Find(CoreNamespace, "resources"); resources != nil {
		for _, node := range resources.Children {
			switch {
			case node.Space == CoreNamespace && node.Name == "object":
				warnings = append(warnings, readObject(doc, node)...)
			case node.Space == CoreNamespace && node.Name == "basematerials":
				warnings = append(warnings, readBaseMaterials(doc, node)...)
			case node.Space == MaterialsNamespace && node.Name == "colorgroup":
				warnings = append(warnings, readColorGroup(doc, node)...)
			}
			// Unknown resources are preserved in the tree but play no role.
		}
	}

	if build := root.Find(CoreNamespace, "build"); build != nil {
		for _, node := range build.FindAll(CoreNamespace, "item") {
			warnings = append(warnings, readBuildItem(doc, node)...)
		}
	}

	warnings = append(warnings, dropUnresolvedReferences(doc)...)

	return doc, warnings
}

// readMetadataInto merges the metadata children of parent into dst.
func readMetadataInto(dst *Metadata, parent *xmldoc.Element) []string {
	var warnings []string
	for _, node := range parent.FindAll(CoreNamespace, "metadata") {
		name, ok := node.Attr("name")
		if !ok || name == "" {
			warnings = append(warnings, "metadata entry without a name, skipping it")
			continue
		}
		entry := Entry{
			Name:     name,
			Value:    node.Text,
			Type:     node.AttrOr("type", ""),
			Preserve: isTrue(node.AttrOr("preserve", "")),
		}
		if w := dst.Store(entry); w != "" {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func isTrue(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

var objectTypes = map[string]bool{
	ObjectTypeModel:        true,
	ObjectTypeSupport:      true,
	ObjectTypeSolidSupport: true,
	ObjectTypeSurface:      true,
	ObjectTypeOther:        true,
}

func readObject(doc *Document, node *xmldoc.Element) []string {
	var warnings []string

	id, err := positiveInt(node.AttrOr("id", ""))
	if err != nil {
		return []string{fmt.Sprintf("object without a valid id (%v), skipping it", err)}
	}

	obj := NewObject(id)
	obj.Name = node.AttrOr("name", "")
	obj.PartNumber = node.AttrOr("partnumber", "")

	if objType := node.AttrOr("type", ObjectTypeModel); objectTypes[objType] {
		obj.Type = objType
	} else {
		warnings = append(warnings, fmt.Sprintf(
			"object %d has unknown type %q, treating it as a model", id, objType))
	}

	obj.PID, obj.PIndex = readMaterialRef(node, &warnings, fmt.Sprintf("object %d", id))

	if group := node.Find(CoreNamespace, "metadatagroup"); group != nil {
		warnings = append(warnings, readMetadataInto(obj.Metadata, group)...)
	}

	meshNode := node.Find(CoreNamespace, "mesh")
	componentsNode := node.Find(CoreNamespace, "components")
	switch {
	case meshNode != nil && componentsNode != nil:
		return append(warnings, fmt.Sprintf(
			"object %d has both mesh and components, skipping it", id))
	case meshNode == nil && componentsNode == nil:
		return append(warnings, fmt.Sprintf(
			"object %d has neither mesh nor components, skipping it", id))
	case meshNode != nil:
		mesh, meshWarnings := readMesh(meshNode, id)
		obj.Mesh = mesh
		warnings = append(warnings, meshWarnings...)
	default:
		components, compWarnings := readComponents(componentsNode, id)
		obj.Components = components
		warnings = append(warnings, compWarnings...)
	}

	if !doc.AddObject(obj) {
		return append(warnings, fmt.Sprintf(
			"duplicate resource id %d, keeping the first occurrence", id))
	}
	return warnings
}

// readMaterialRef reads the optional pid/pindex attribute pair.
func readMaterialRef(node *xmldoc.Element, warnings *[]string, context string) (pid, pindex int) {
	pid, pindex = NoMaterial, NoMaterial
	if raw, ok := node.Attr("pid"); ok {
		value, err := positiveInt(raw)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s has an invalid pid %q", context, raw))
		} else {
			pid = value
		}
	}
	if raw, ok := node.Attr("pindex"); ok {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			*warnings = append(*warnings, fmt.Sprintf("%s has an invalid pindex %q", context, raw))
		} else {
			pindex = value
		}
	}
	return pid, pindex
}

// readMesh parses a mesh element. Vertices with unparseable coordinates are
// omitted; triangles touching them, referencing out-of-range vertices or
// repeating a vertex are dropped, each with its own warning.
func readMesh(node *xmldoc.Element, objectID int) (*Mesh, []string) {
	mesh := &Mesh{}
	var warnings []string

	// remap[i] is the index a wire vertex i landed at, -1 when omitted.
	var remap []int
	if vertices := node.Find(CoreNamespace, "vertices"); vertices != nil {
		for i, vertexNode := range vertices.FindAll(CoreNamespace, "vertex") {
			v, err := readVertex(vertexNode)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf(
					"object %d vertex %d: %v, omitting the vertex", objectID, i, err))
				remap = append(remap, -1)
				continue
			}
			remap = append(remap, len(mesh.Vertices))
			mesh.Vertices = append(mesh.Vertices, v)
		}
	}

	if triangles := node.Find(CoreNamespace, "triangles"); triangles != nil {
		for i, triangleNode := range triangles.FindAll(CoreNamespace, "triangle") {
			triangle, err := readTriangle(triangleNode, remap)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf(
					"object %d triangle %d: %v, dropping the triangle", objectID, i, err))
				continue
			}
			if raw, ok := triangleNode.Attr("pid"); ok {
				if value, err := positiveInt(raw); err == nil {
					triangle.PID = value
				} else {
					warnings = append(warnings, fmt.Sprintf(
						"object %d triangle %d has an invalid pid %q", objectID, i, raw))
				}
			}
			if raw, ok := triangleNode.Attr("p1"); ok {
				if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
					triangle.P1 = value
				} else {
					warnings = append(warnings, fmt.Sprintf(
						"object %d triangle %d has an invalid p1 %q", objectID, i, raw))
				}
			}
			mesh.Triangles = append(mesh.Triangles, triangle)
		}
	}

	return mesh, warnings
}

func readVertex(node *xmldoc.Element) (math.Vec3, error) {
	var v math.Vec3
	for _, coord := range []struct {
		attr string
		dst  *float64
	}{{"x", &v.X}, {"y", &v.Y}, {"z", &v.Z}} {
		raw, ok := node.Attr(coord.attr)
		if !ok {
			return math.Vec3{}, fmt.Errorf("missing %s coordinate", coord.attr)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || !math.Finite(value) {
			return math.Vec3{}, fmt.Errorf("%s coordinate %q is not a finite number", coord.attr, raw)
		}
		*coord.dst = value
	}
	return v, nil
}

func readTriangle(node *xmldoc.Element, remap []int) (Triangle, error) {
	triangle := Triangle{PID: NoMaterial, P1: NoMaterial}
	for i, attr := range []string{"v1", "v2", "v3"} {
		raw, ok := node.Attr(attr)
		if !ok {
			return Triangle{}, fmt.Errorf("missing %s", attr)
		}
		index, err := strconv.Atoi(raw)
		if err != nil {
			return Triangle{}, fmt.Errorf("%s %q is not an integer", attr, raw)
		}
		if index < 0 || index >= len(remap) {
			return Triangle{}, fmt.Errorf("%s references vertex %d out of range", attr, index)
		}
		if remap[index] == -1 {
			return Triangle{}, fmt.Errorf("%s references an omitted vertex", attr)
		}
		triangle.Indices[i] = remap[index]
	}
	if triangle.Indices[0] == triangle.Indices[1] ||
		triangle.Indices[1] == triangle.Indices[2] ||
		triangle.Indices[0] == triangle.Indices[2] {
		return Triangle{}, fmt.Errorf("degenerate vertex indices %v", triangle.Indices)
	}
	return triangle, nil
}

func readComponents(node *xmldoc.Element, objectID int) ([]Component, []string) {
	var components []Component
	var warnings []string
	for i, componentNode := range node.FindAll(CoreNamespace, "component") {
		refID, err := positiveInt(componentNode.AttrOr("objectid", ""))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"object %d component %d without a valid objectid, skipping it", objectID, i))
			continue
		}
		transform := math.Identity()
		if raw, ok := componentNode.Attr("transform"); ok {
			transform, err = ParseTransform(raw)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf(
					"object %d component %d: %v, using identity", objectID, i, err))
			}
		}
		components = append(components, Component{ObjectID: refID, Transform: transform})
	}
	return components, warnings
}

func readBaseMaterials(doc *Document, node *xmldoc.Element) []string {
	var warnings []string
	id, err := positiveInt(node.AttrOr("id", ""))
	if err != nil {
		return []string{fmt.Sprintf("basematerials without a valid id (%v), skipping it", err)}
	}

	group := &MaterialGroup{ID: id}
	for i, base := range node.FindAll(CoreNamespace, "base") {
		material := Material{Name: base.AttrOr("name", "")}
		if raw, ok := base.Attr("displaycolor"); ok {
			color, err := ParseColor(raw)
			if err != nil {
				// Material stays colorless so later indices keep lining up.
				warnings = append(warnings, fmt.Sprintf(
					"basematerials %d base %d: %v", id, i, err))
			} else {
				material.Color = color
			}
		}
		group.Materials = append(group.Materials, material)
	}

	if !doc.AddMaterialGroup(group) {
		return append(warnings, fmt.Sprintf(
			"duplicate resource id %d, keeping the first occurrence", id))
	}
	return warnings
}

func readColorGroup(doc *Document, node *xmldoc.Element) []string {
	var warnings []string
	id, err := positiveInt(node.AttrOr("id", ""))
	if err != nil {
		return []string{fmt.Sprintf("colorgroup without a valid id (%v), skipping it", err)}
	}

	group := &MaterialGroup{ID: id}
	for i, colorNode := range node.FindAll(MaterialsNamespace, "color") {
		var material Material
		if raw, ok := colorNode.Attr("color"); ok {
			color, err := ParseColor(raw)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf(
					"colorgroup %d color %d: %v", id, i, err))
			} else {
				material.Color = color
			}
		}
		group.Materials = append(group.Materials, material)
	}

	if !doc.AddMaterialGroup(group) {
		return append(warnings, fmt.Sprintf(
			"duplicate resource id %d, keeping the first occurrence", id))
	}
	return warnings
}

func readBuildItem(doc *Document, node *xmldoc.Element) []string {
	var warnings []string
	refID, err := positiveInt(node.AttrOr("objectid", ""))
	if err != nil {
		return []string{"build item without a valid objectid, skipping it"}
	}

	transform := math.Identity()
	if raw, ok := node.Attr("transform"); ok {
		transform, err = ParseTransform(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"build item for object %d: %v, using identity", refID, err))
		}
	}

	doc.Build = append(doc.Build, BuildItem{
		ObjectID:   refID,
		Transform:  transform,
		PartNumber: node.AttrOr("partnumber", ""),
	})
	return warnings
}

// dropUnresolvedReferences removes components and build items whose target
// object never materialized, so the resolver only ever sees live edges.
func dropUnresolvedReferences(doc *Document) []string {
	var warnings []string

	for _, obj := range doc.Objects() {
		kept := obj.Components[:0]
		for _, component := range obj.Components {
			if doc.Object(component.ObjectID) == nil {
				warnings = append(warnings, fmt.Sprintf(
					"object %d references missing object %d, dropping the component",
					obj.ID, component.ObjectID))
				continue
			}
			kept = append(kept, component)
		}
		obj.Components = kept
	}

	keptItems := doc.Build[:0]
	for _, item := range doc.Build {
		if doc.Object(item.ObjectID) == nil {
			warnings = append(warnings, fmt.Sprintf(
				"build item references missing object %d, dropping it", item.ObjectID))
			continue
		}
		keptItems = append(keptItems, item)
	}
	doc.Build = keptItems

	return warnings
}

func positiveInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing id")
	}
	value, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%d is not a positive id", value)
	}
	return value, nil
}
