package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/threemf/pkg/math"
	"github.com/Faultbox/threemf/pkg/scene"
	"github.com/Faultbox/threemf/pkg/xmldoc"
)

func quadMesh() *scene.Mesh {
	return &scene.Mesh{
		Vertices: []math.Vec3{
			{X: 0, Y: 0, Z: 0},
			{X: 10, Y: 0, Z: 0},
			{X: 10, Y: 10, Z: 0},
			{X: 0, Y: 10, Z: 0},
		},
		Triangles: []scene.Triangle{
			{V1: 0, V2: 1, V3: 2, Material: scene.NoMaterial},
			{V1: 0, V2: 2, V3: 3, Material: scene.NoMaterial},
		},
	}
}

func singleObjectScene(name string) *scene.Scene {
	s := scene.NewScene()
	obj := scene.NewObject(name)
	obj.Mesh = quadMesh()
	s.Objects = append(s.Objects, obj)
	return s
}

func TestBuildDocumentFreshIDsPerCall(t *testing.T) {
	s := singleObjectScene("cube")

	first, warnings := BuildDocument(s, DefaultExportOptions())
	require.Empty(t, warnings)
	second, warnings := BuildDocument(s, DefaultExportOptions())
	require.Empty(t, warnings)

	// Two exports of the same scene must both start counting at 1; no
	// state leaks between calls.
	require.Len(t, first.Objects(), 1)
	require.Len(t, second.Objects(), 1)
	assert.Equal(t, 1, first.Objects()[0].ID)
	assert.Equal(t, 1, second.Objects()[0].ID)
}

func TestBuildDocumentSelectionOnly(t *testing.T) {
	s := scene.NewScene()
	selected := scene.NewObject("selected")
	selected.Mesh = quadMesh()
	selected.Selected = true
	ignored := scene.NewObject("ignored")
	ignored.Mesh = quadMesh()
	s.Objects = append(s.Objects, selected, ignored)

	opts := DefaultExportOptions()
	opts.SelectionOnly = true
	doc, _ := BuildDocument(s, opts)

	require.Len(t, doc.Build, 1)
	require.Len(t, doc.Objects(), 1)
	assert.Equal(t, "selected", doc.Objects()[0].Name)
}

func TestBuildDocumentMeshWithChildrenSplits(t *testing.T) {
	s := scene.NewScene()
	parent := scene.NewObject("parent")
	parent.Mesh = quadMesh()
	child := parent.AddChild(scene.NewObject("child"))
	child.Mesh = quadMesh()
	child.Transform = math.Translate(0, 0, 5)
	s.Objects = append(s.Objects, parent)

	doc, warnings := BuildDocument(s, DefaultExportOptions())
	require.Empty(t, warnings)

	// parent mesh object + child object + parent components object.
	require.Len(t, doc.Objects(), 3)
	for _, obj := range doc.Objects() {
		if len(obj.Components) > 0 {
			assert.Nil(t, obj.Mesh, "a components object must not carry mesh data")
			assert.Len(t, obj.Components, 2)
		}
	}

	require.Len(t, doc.Build, 1)
	root := doc.Object(doc.Build[0].ObjectID)
	require.NotNil(t, root)
	assert.NotEmpty(t, root.Components)
}

func TestBuildDocumentMaterials(t *testing.T) {
	s := scene.NewScene()
	red := s.AddMaterial(scene.Material{Name: "red", Color: [4]float64{1, 0, 0, 1}, HasColor: true})
	blue := s.AddMaterial(scene.Material{Name: "blue", Color: [4]float64{0, 0, 1, 1}, HasColor: true})

	obj := scene.NewObject("flag")
	obj.Material = red
	obj.Mesh = quadMesh()
	obj.Mesh.Triangles[1].Material = blue
	s.Objects = append(s.Objects, obj)

	doc, _ := BuildDocument(s, DefaultExportOptions())

	groups := doc.MaterialGroups()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Materials, 2)
	assert.Equal(t, 1, groups[0].ID, "the material group takes the first resource id")

	out := doc.Objects()[0]
	// Red covers one triangle via the object default, blue is the
	// per-triangle override.
	assert.Equal(t, groups[0].ID, out.PID)
	assert.Equal(t, 0, out.PIndex)
	assert.Equal(t, NoMaterial, out.Mesh.Triangles[0].P1)
	assert.Equal(t, 1, out.Mesh.Triangles[1].P1)
}

func TestBuildDocumentScaleInPlacement(t *testing.T) {
	s := singleObjectScene("cube")
	s.UnitScale = 1000 // scene authored in meters

	opts := DefaultExportOptions()
	opts.Scale = 0.5
	doc, _ := BuildDocument(s, opts)

	require.Len(t, doc.Build, 1)
	// Vertices stay in scene units; the placement bakes the combined
	// scale of 500.
	origin := doc.Build[0].Transform.TransformPoint(math.Vec3{X: 1, Y: 0, Z: 0})
	assert.InDelta(t, 500, origin.X, 1e-9)
	obj := doc.Object(doc.Build[0].ObjectID)
	assert.InDelta(t, 10, obj.Mesh.Vertices[1].X, 1e-9)
}

func TestBuildDocumentAppliesDeformations(t *testing.T) {
	s := scene.NewScene()
	obj := scene.NewObject("bent")
	obj.Mesh = quadMesh()
	obj.Evaluated = quadMesh()
	obj.Evaluated.Vertices[0] = math.Vec3{X: -1, Y: -1, Z: -1}
	s.Objects = append(s.Objects, obj)

	withDeform, _ := BuildDocument(s, DefaultExportOptions())
	assert.Equal(t, -1.0, withDeform.Objects()[0].Mesh.Vertices[0].X)

	opts := DefaultExportOptions()
	opts.ApplyDeformations = false
	withoutDeform, _ := BuildDocument(s, opts)
	assert.Equal(t, 0.0, withoutDeform.Objects()[0].Mesh.Vertices[0].X)
}

func TestBuildDocumentObjectTypeFromMetadata(t *testing.T) {
	s := scene.NewScene()
	support := scene.NewObject("raft")
	support.Mesh = quadMesh()
	support.Metadata = map[string]scene.MetadataEntry{
		ObjectTypeMetadata: {Value: ObjectTypeSupport},
	}
	other := scene.NewObject("misc")
	other.Mesh = quadMesh()
	other.Metadata = map[string]scene.MetadataEntry{
		ObjectTypeMetadata: {Value: ObjectTypeOther},
	}
	s.Objects = append(s.Objects, support, other)

	doc, _ := BuildDocument(s, DefaultExportOptions())
	require.Len(t, doc.Objects(), 2)
	assert.Equal(t, ObjectTypeSupport, doc.Objects()[0].Type)
	// "other" normalizes to model so the build item stays legal.
	assert.Equal(t, ObjectTypeModel, doc.Objects()[1].Type)
	// The parked type never shows up as metadata again.
	_, ok := doc.Objects()[0].Metadata.Get(ObjectTypeMetadata)
	assert.False(t, ok)
}

func TestDocumentXMLRoundTrip(t *testing.T) {
	s := scene.NewScene()
	red := s.AddMaterial(scene.Material{Name: "red", Color: [4]float64{1, 0, 0, 1}, HasColor: true})

	obj := scene.NewObject("cube")
	obj.Material = red
	obj.Mesh = quadMesh()
	obj.Mesh.Vertices[1] = math.Vec3{X: 10.12345, Y: 0, Z: 0}
	obj.Transform = math.Translate(4, 5, 6)
	obj.PartNumber = "PN-1"
	obj.Metadata = map[string]scene.MetadataEntry{
		"Part": {Value: "hull", Type: "xs:string"},
	}
	s.Objects = append(s.Objects, obj)

	doc, warnings := BuildDocument(s, DefaultExportOptions())
	require.Empty(t, warnings)
	doc.Metadata.Store(Entry{Name: "Title", Value: "roundtrip"})

	data, err := xmldoc.Marshal(doc.XML(4))
	require.NoError(t, err)

	parsedRoot, err := xmldoc.Parse(data)
	require.NoError(t, err)
	reread, rereadWarnings := ReadDocument(parsedRoot)
	require.Empty(t, rereadWarnings)

	// Counts and connectivity survive.
	require.Len(t, reread.Objects(), 1)
	out := reread.Objects()[0]
	assert.Equal(t, "cube", out.Name)
	assert.Equal(t, "PN-1", out.PartNumber)
	require.NotNil(t, out.Mesh)
	assert.Len(t, out.Mesh.Vertices, 4)
	assert.Len(t, out.Mesh.Triangles, 2)
	assert.Equal(t, [3]int{0, 1, 2}, out.Mesh.Triangles[0].Indices)

	// Coordinates hold to the export precision.
	assert.InDelta(t, 10.12345, out.Mesh.Vertices[1].X, 1e-3)

	// Placement, materials and metadata survive.
	require.Len(t, reread.Build, 1)
	origin := reread.Build[0].Transform.TransformPoint(math.Vec3{})
	assert.InDelta(t, 4, origin.X, 1e-3)
	assert.InDelta(t, 5, origin.Y, 1e-3)
	assert.InDelta(t, 6, origin.Z, 1e-3)

	material := reread.TriangleMaterial(out, out.Mesh.Triangles[0])
	require.NotNil(t, material)
	assert.Equal(t, "red", material.Name)
	assert.True(t, material.Color.Valid)

	title, ok := reread.Metadata.Get("Title")
	require.True(t, ok)
	assert.Equal(t, "roundtrip", title.Value)
	part, ok := out.Metadata.Get("Part")
	require.True(t, ok)
	assert.Equal(t, "hull", part.Value)
}
