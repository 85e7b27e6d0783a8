package scene

import (
	"testing"
)

func TestAddMaterialDeduplicates(t *testing.T) {
	s := NewScene()
	red := Material{Name: "red", Color: [4]float64{1, 0, 0, 1}, HasColor: true}
	blue := Material{Name: "blue", Color: [4]float64{0, 0, 1, 1}, HasColor: true}

	first := s.AddMaterial(red)
	second := s.AddMaterial(blue)
	again := s.AddMaterial(red)

	if first != again {
		t.Errorf("equal materials got distinct indices %d and %d", first, again)
	}
	if second == first {
		t.Error("distinct materials share an index")
	}
	if len(s.Materials) != 2 {
		t.Errorf("material count = %d, want 2", len(s.Materials))
	}
}

func TestWalkOrder(t *testing.T) {
	s := NewScene()
	root := NewObject("root")
	a := root.AddChild(NewObject("a"))
	a.AddChild(NewObject("a1"))
	root.AddChild(NewObject("b"))
	s.Objects = append(s.Objects, root)

	var names []string
	s.Walk(func(o *Object) { names = append(names, o.Name) })

	want := []string{"root", "a", "a1", "b"}
	if len(names) != len(want) {
		t.Fatalf("visited %d objects, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("visit order[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestNewObjectDefaults(t *testing.T) {
	o := NewObject("thing")
	if !o.Transform.IsIdentity() {
		t.Error("new object transform should be identity")
	}
	if o.Material != NoMaterial {
		t.Errorf("new object material = %d, want NoMaterial", o.Material)
	}
}
