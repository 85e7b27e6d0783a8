// Package scene holds the application-side scene graph the 3MF codec reads
// into and writes from. It is deliberately decoupled from the wire format:
// objects form a tree, carry world-ready transforms and reference materials
// by index into the scene's material table.
package scene

import (
	"github.com/Faultbox/threemf/pkg/math"
)

// NoMaterial marks a triangle or object without a material assignment.
const NoMaterial = -1

// Scene is a collection of root objects plus the tables shared between them.
type Scene struct {
	// Objects are the root-level objects. Child objects hang off their
	// parents and do not appear here.
	Objects []*Object

	// Materials is the shared material table. Triangles and objects refer
	// to entries by index.
	Materials []Material

	// UnitScale converts scene units to millimeters. 1 means the scene is
	// authored in millimeters already.
	UnitScale float64
}

// NewScene returns an empty millimeter-unit scene.
func NewScene() *Scene {
	return &Scene{UnitScale: 1}
}

// AddMaterial appends a material and returns its index. An equal existing
// material is reused instead.
func (s *Scene) AddMaterial(m Material) int {
	for i, existing := range s.Materials {
		if existing == m {
			return i
		}
	}
	s.Materials = append(s.Materials, m)
	return len(s.Materials) - 1
}

// Walk visits every object in the scene depth-first, parents before
// children. The visitor receives each object once.
func (s *Scene) Walk(visit func(*Object)) {
	for _, obj := range s.Objects {
		obj.Walk(visit)
	}
}

// Object is one node of the scene graph.
type Object struct {
	Name string

	// Mesh is the object's own geometry, nil for grouping nodes.
	Mesh *Mesh

	// Evaluated is the geometry with deformations applied, when the caller
	// has one. Exporters may prefer it over Mesh.
	Evaluated *Mesh

	// Transform places the object relative to its parent (or the scene, for
	// roots).
	Transform math.Mat4

	// Material indexes the scene material table, NoMaterial for none. It is
	// the object-level default; triangles may override it.
	Material int

	Selected bool
	Hidden   bool

	// PartNumber is an opaque production identifier carried through the
	// format.
	PartNumber string

	// Metadata holds object-level name/value annotations.
	Metadata map[string]MetadataEntry

	Children []*Object
}

// NewObject returns a leaf object with an identity transform and no
// material.
func NewObject(name string) *Object {
	return &Object{
		Name:      name,
		Transform: math.Identity(),
		Material:  NoMaterial,
	}
}

// AddChild attaches a child object and returns it for chaining.
func (o *Object) AddChild(child *Object) *Object {
	o.Children = append(o.Children, child)
	return child
}

// Walk visits the object and all its descendants, parents first.
func (o *Object) Walk(visit func(*Object)) {
	visit(o)
	for _, child := range o.Children {
		child.Walk(visit)
	}
}

// Mesh is indexed triangle geometry.
type Mesh struct {
	Vertices  []math.Vec3
	Triangles []Triangle
}

// Triangle references three vertices by index. Material indexes the scene
// material table and overrides the owning object's material; NoMaterial
// defers to the object.
type Triangle struct {
	V1, V2, V3 int
	Material   int
}

// Material is a named appearance. Color is linear RGBA in [0,1]; HasColor
// distinguishes an explicit black from no color at all.
type Material struct {
	Name     string
	Color    [4]float64
	HasColor bool
}

// MetadataEntry is one name/value annotation on an object or scene. Type is
// the declared datatype of the value, free-form. Preserve asks writers to
// carry the entry through even when they would otherwise drop unknown
// metadata.
type MetadataEntry struct {
	Value    string
	Type     string
	Preserve bool
}
