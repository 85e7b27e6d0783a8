// Package model implements the 3MF document model: reading the model part
// XML into a resource graph, resolving build items into placed instances,
// merging metadata and package annotations across documents, and writing a
// document back out.
//
// The package is tolerant by design. Anything recoverable degrades to a
// warning string and the rest of the document survives; the only fatal
// conditions live one layer down in pkg/opc.
package model

import (
	"github.com/Faultbox/threemf/pkg/math"
)

// Namespaces of the model part.
const (
	CoreNamespace      = "http://schemas.microsoft.com/3dmanufacturing/core/2015/02"
	MaterialsNamespace = "http://schemas.microsoft.com/3dmanufacturing/material/2015/02"
)

// NoMaterial marks an absent pid/pindex reference.
const NoMaterial = -1

// Document is one parsed model part: resources plus the build plate.
type Document struct {
	// Unit the model is authored in. Always one of the unit names from
	// units.go after reading.
	Unit string

	// Metadata holds the document-level metadata entries.
	Metadata *Metadata

	// Build lists the items placed on the build plate, in document order.
	Build []BuildItem

	objects        map[int]*Object
	objectOrder    []int
	materialGroups map[int]*MaterialGroup
	groupOrder     []int
	ids            map[int]bool
}

// NewDocument returns an empty millimeter document.
func NewDocument() *Document {
	return &Document{
		Unit:           DefaultUnit,
		Metadata:       NewMetadata(),
		objects:        make(map[int]*Object),
		materialGroups: make(map[int]*MaterialGroup),
		ids:            make(map[int]bool),
	}
}

// AddObject registers an object resource. It reports false when the ID is
// already taken; the first occupant keeps the ID.
func (d *Document) AddObject(obj *Object) bool {
	if obj.ID <= 0 || d.ids[obj.ID] {
		return false
	}
	d.ids[obj.ID] = true
	d.objects[obj.ID] = obj
	d.objectOrder = append(d.objectOrder, obj.ID)
	return true
}

// Object returns the object with the given resource ID, or nil.
func (d *Document) Object(id int) *Object {
	return d.objects[id]
}

// Objects returns all objects in document order.
func (d *Document) Objects() []*Object {
	result := make([]*Object, 0, len(d.objectOrder))
	for _, id := range d.objectOrder {
		result = append(result, d.objects[id])
	}
	return result
}

// RemoveObject drops an object resource, freeing neither its ID nor any
// references to it; callers clean those up separately.
func (d *Document) RemoveObject(id int) {
	if _, ok := d.objects[id]; !ok {
		return
	}
	delete(d.objects, id)
	for i, other := range d.objectOrder {
		if other == id {
			d.objectOrder = append(d.objectOrder[:i], d.objectOrder[i+1:]...)
			break
		}
	}
}

// AddMaterialGroup registers a material group resource. Resource IDs share
// one document-wide space with objects.
func (d *Document) AddMaterialGroup(group *MaterialGroup) bool {
	if group.ID <= 0 || d.ids[group.ID] {
		return false
	}
	d.ids[group.ID] = true
	d.materialGroups[group.ID] = group
	d.groupOrder = append(d.groupOrder, group.ID)
	return true
}

// MaterialGroup returns the material group with the given ID, or nil.
func (d *Document) MaterialGroup(id int) *MaterialGroup {
	return d.materialGroups[id]
}

// MaterialGroups returns all material groups in document order.
func (d *Document) MaterialGroups() []*MaterialGroup {
	result := make([]*MaterialGroup, 0, len(d.groupOrder))
	for _, id := range d.groupOrder {
		result = append(result, d.materialGroups[id])
	}
	return result
}

// Material resolves a pid/pindex pair to a material, or nil when either
// half is absent or out of range.
func (d *Document) Material(pid, pindex int) *Material {
	if pid == NoMaterial || pindex == NoMaterial {
		return nil
	}
	group := d.materialGroups[pid]
	if group == nil || pindex < 0 || pindex >= len(group.Materials) {
		return nil
	}
	return &group.Materials[pindex]
}

// Object is one object resource. Exactly one of Mesh and Components is set
// on a valid object.
type Object struct {
	ID         int
	Name       string
	Type       string // model, support, solidsupport, surface, other
	PartNumber string

	// PID and PIndex name the object's default material, NoMaterial when
	// absent.
	PID    int
	PIndex int

	Mesh       *Mesh
	Components []Component

	Metadata *Metadata
}

// NewObject returns an object with no material reference.
func NewObject(id int) *Object {
	return &Object{
		ID:       id,
		Type:     ObjectTypeModel,
		PID:      NoMaterial,
		PIndex:   NoMaterial,
		Metadata: NewMetadata(),
	}
}

// Object types defined by the 3MF core specification.
const (
	ObjectTypeModel        = "model"
	ObjectTypeSupport      = "support"
	ObjectTypeSolidSupport = "solidsupport"
	ObjectTypeSurface      = "surface"
	ObjectTypeOther        = "other"
)

// IsSupport reports whether instances of the object are print supports
// rather than part geometry.
func (o *Object) IsSupport() bool {
	return o.Type == ObjectTypeSupport || o.Type == ObjectTypeSolidSupport
}

// Mesh is the indexed geometry of an object resource.
type Mesh struct {
	Vertices  []math.Vec3
	Triangles []Triangle
}

// Triangle references three vertices by index. PID/P1 override the object's
// material for this triangle, NoMaterial when absent.
type Triangle struct {
	Indices [3]int
	PID     int
	P1      int
}

// Component places another object resource inside its parent.
type Component struct {
	ObjectID  int
	Transform math.Mat4
}

// BuildItem places an object resource on the build plate.
type BuildItem struct {
	ObjectID   int
	Transform  math.Mat4
	PartNumber string
}

// MaterialGroup is one basematerials or colorgroup resource.
type MaterialGroup struct {
	ID        int
	Materials []Material
}

// Material is a named display material.
type Material struct {
	Name  string
	Color Color
}
