package model

import (
	"bytes"
	"fmt"

	"github.com/Faultbox/threemf/pkg/opc"
)

// Annotations accumulate what the codec knows about package parts beyond
// the model itself: their relationship types, their content types and, for
// parts that must survive a round trip untouched, their exact bytes.
//
// One Annotations value can absorb several packages; conflicting knowledge
// degrades to a per-part conflict marker so that merge order never decides
// a winner.
type Annotations struct {
	parts map[string]*partAnnotation
	order []string
}

type partAnnotation struct {
	relTypes []string

	contentType string
	ctConflict  bool

	preserved        []byte
	preserveSet      bool
	preserveConflict bool
}

// NewAnnotations returns an empty annotation set.
func NewAnnotations() *Annotations {
	return &Annotations{parts: make(map[string]*partAnnotation)}
}

func (a *Annotations) part(target string) *partAnnotation {
	if p, ok := a.parts[target]; ok {
		return p
	}
	p := &partAnnotation{}
	a.parts[target] = p
	a.order = append(a.order, target)
	return p
}

// Collect absorbs the relationships, content types and must-preserve parts
// of one opened package.
func (a *Annotations) Collect(pkg *opc.Package) []string {
	var warnings []string

	for _, rel := range pkg.Relationships {
		if rel.Type == opc.ModelRelType {
			continue // the model part is handled by the codec itself
		}
		a.part(rel.Target).addRelType(rel.Type)
	}

	for _, part := range pkg.Parts() {
		if part.ContentType == "" || part.ContentType == opc.ModelContentType {
			continue
		}
		p := a.part(part.Path)
		switch {
		case p.ctConflict:
			// stays in conflict
		case p.contentType == "" || p.contentType == part.ContentType:
			p.contentType = part.ContentType
		default:
			p.ctConflict = true
			p.contentType = ""
			warnings = append(warnings, fmt.Sprintf(
				"conflicting content types for %s, leaving the part untyped", part.Path))
		}
	}

	for _, part := range pkg.Parts() {
		p := a.parts[part.Path]
		if p == nil || !p.mustPreserve(part.ContentType) {
			continue
		}
		switch {
		case p.preserveConflict:
			// stays in conflict
		case !p.preserveSet:
			p.preserved = part.Data
			p.preserveSet = true
		case !bytes.Equal(p.preserved, part.Data):
			p.preserveConflict = true
			p.preserved = nil
			warnings = append(warnings, fmt.Sprintf(
				"conflicting contents for preserved part %s, dropping it", part.Path))
		}
	}

	return warnings
}

func (p *partAnnotation) addRelType(relType string) {
	for _, existing := range p.relTypes {
		if existing == relType {
			return
		}
	}
	p.relTypes = append(p.relTypes, relType)
}

func (p *partAnnotation) mustPreserve(contentType string) bool {
	if contentType == opc.PrintTicketContentType {
		return true
	}
	for _, relType := range p.relTypes {
		if relType == opc.MustPreserveRelType || relType == opc.PrintTicketRelType {
			return true
		}
	}
	return false
}

// Apply writes the accumulated annotations into an outgoing package:
// preserved parts byte-for-byte with their content types, plus the
// relationships pointing at them. Parts in conflict are skipped with a
// warning.
func (a *Annotations) Apply(pkg *opc.Package) []string {
	var warnings []string
	for _, target := range a.order {
		p := a.parts[target]

		if p.preserveConflict {
			warnings = append(warnings, fmt.Sprintf(
				"preserved part %s had conflicting contents and is not written", target))
		} else if p.preserveSet {
			contentType := p.contentType
			if p.ctConflict {
				contentType = ""
			}
			pkg.AddPart(target, contentType, p.preserved)
		}

		if pkg.Part(target) == nil {
			continue // no part to point relationships at
		}
		for _, relType := range p.relTypes {
			pkg.AddRelationship(opc.Relationship{
				Source: "",
				Target: target,
				Type:   relType,
			})
		}
	}
	return warnings
}
