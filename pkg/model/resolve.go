package model

import (
	"fmt"

	"github.com/Faultbox/threemf/pkg/math"
)

// Instance is one placed occurrence of an object resource, with its world
// transform fully composed. Instances form a tree mirroring the component
// hierarchy that produced them.
type Instance struct {
	Object     *Object
	Transform  math.Mat4
	PartNumber string
	Children   []*Instance
}

// Resolve instantiates every build item into a tree of placed instances.
// The build item's transform is outermost; each component's transform
// composes inside its parent's. A component cycle abandons just the branch
// that closed it, with a warning, and yields no instances from that branch.
func (d *Document) Resolve() ([]*Instance, []string) {
	var roots []*Instance
	var warnings []string

	for _, item := range d.Build {
		obj := d.Object(item.ObjectID)
		if obj == nil {
			continue // dropped earlier, defensive
		}
		path := map[int]bool{}
		instance, branchWarnings := d.instantiate(obj, item.Transform, path)
		warnings = append(warnings, branchWarnings...)
		if instance == nil {
			continue
		}
		if item.PartNumber != "" {
			instance.PartNumber = item.PartNumber
		}
		roots = append(roots, instance)
	}

	return roots, warnings
}

// instantiate builds the instance subtree for one object occurrence. path
// holds the object IDs on the current descent only; the unwind delete means
// sibling branches never see each other's entries and may legitimately
// reuse the same object.
func (d *Document) instantiate(obj *Object, world math.Mat4, path map[int]bool) (*Instance, []string) {
	if path[obj.ID] {
		return nil, []string{fmt.Sprintf(
			"object %d is part of a component cycle, abandoning the branch", obj.ID)}
	}
	path[obj.ID] = true
	defer delete(path, obj.ID)

	instance := &Instance{
		Object:     obj,
		Transform:  world,
		PartNumber: obj.PartNumber,
	}

	var warnings []string
	for _, component := range obj.Components {
		child := d.Object(component.ObjectID)
		if child == nil {
			continue
		}
		childInstance, childWarnings := d.instantiate(child, world.Mul(component.Transform), path)
		warnings = append(warnings, childWarnings...)
		if childInstance != nil {
			instance.Children = append(instance.Children, childInstance)
		}
	}

	return instance, warnings
}

// Walk visits the instance and all its descendants, parents first.
func (inst *Instance) Walk(visit func(*Instance)) {
	visit(inst)
	for _, child := range inst.Children {
		child.Walk(visit)
	}
}

// TriangleMaterial resolves the material of one triangle of the instance's
// mesh: the triangle's own override wins, then the object default, then
// none.
func (d *Document) TriangleMaterial(obj *Object, t Triangle) *Material {
	pid, p1 := t.PID, t.P1
	if pid == NoMaterial {
		pid = obj.PID
	}
	if p1 == NoMaterial {
		if pid == obj.PID && obj.PIndex != NoMaterial {
			p1 = obj.PIndex
		} else if pid != NoMaterial {
			p1 = 0 // a pid without an index picks the group's first entry
		}
	}
	return d.Material(pid, p1)
}
