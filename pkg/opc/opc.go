// Package opc reads and writes the zip-based package container used by 3MF
// files: parts, the content-types index and relationship files.
package opc

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Faultbox/threemf/pkg/xmldoc"
)

// Reserved part locations and folder conventions.
const (
	ContentTypesPath = "[Content_Types].xml"
	DefaultModelPath = "3D/3dmodel.model"
	RelsFolder       = "_rels"
)

// Content types of parts the codec understands.
const (
	RelsContentType        = "application/vnd.openxmlformats-package.relationships+xml"
	ModelContentType       = "application/vnd.ms-package.3dmanufacturing-3dmodel+xml"
	PrintTicketContentType = "application/vnd.ms-printing.printticket+xml"
)

// Relationship types.
const (
	ModelRelType        = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
	ThumbnailRelType    = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/thumbnail"
	MustPreserveRelType = "http://schemas.openxmlformats.org/package/2006/relationships/mustpreserve"
	PrintTicketRelType  = "http://schemas.microsoft.com/3dmanufacturing/2013/01/printticket"
)

const (
	contentTypesNamespace = "http://schemas.openxmlformats.org/package/2006/content-types"
	relsNamespace         = "http://schemas.openxmlformats.org/package/2006/relationships"
)

// ErrCorruptArchive indicates the file cannot be opened as a zip archive at
// all. This is the only fatal error of the container layer.
var ErrCorruptArchive = errors.New("corrupt archive")

// Part is a named entry of the package.
type Part struct {
	Path        string
	ContentType string // empty when unknown (opaque part)
	Data        []byte
}

// Relationship is a typed link from a source folder to a target part.
// Source is the folder whose _rels file declared the relationship, empty for
// the package root.
type Relationship struct {
	ID     string
	Source string
	Target string
	Type   string
}

// Package is an in-memory 3MF container.
type Package struct {
	parts         map[string]*Part
	order         []string
	Relationships []Relationship
}

// NewPackage returns an empty package.
func NewPackage() *Package {
	return &Package{parts: make(map[string]*Part)}
}

// Open reads a package from disk.
func Open(filename string) (*Package, []string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("reading file: %w", err)
	}
	return OpenReader(data)
}

// OpenReader parses a package from raw bytes. A file that is not a zip
// archive fails with ErrCorruptArchive; every recoverable oddity inside the
// archive is reported as a warning instead.
func OpenReader(data []byte) (*Package, []string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	pkg := NewPackage()
	var warnings []string

	for _, file := range reader.File {
		if strings.HasSuffix(file.Name, "/") {
			continue // directory entry
		}
		rc, err := file.Open()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot open part %s: %v", file.Name, err))
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot read part %s: %v", file.Name, err))
			continue
		}
		pkg.AddPart(normalizePath(file.Name), "", content)
	}

	rules, ctWarnings := readContentTypes(pkg)
	warnings = append(warnings, ctWarnings...)

	// The content-types part describes the others and is not itself a part
	// of the payload. It is regenerated on write.
	pkg.removePart(ContentTypesPath)

	for _, part := range pkg.Parts() {
		part.ContentType = rules.assign(part.Path)
	}

	warnings = append(warnings, pkg.readRelationships()...)

	return pkg, warnings, nil
}

// AddPart stores a part, replacing any part at the same path.
func (p *Package) AddPart(partPath, contentType string, data []byte) *Part {
	partPath = normalizePath(partPath)
	if existing, ok := p.parts[partPath]; ok {
		existing.ContentType = contentType
		existing.Data = data
		return existing
	}
	part := &Part{Path: partPath, ContentType: contentType, Data: data}
	p.parts[partPath] = part
	p.order = append(p.order, partPath)
	return part
}

// Part returns the part at the given path, or nil.
func (p *Package) Part(partPath string) *Part {
	return p.parts[normalizePath(partPath)]
}

// Parts returns all parts in insertion order.
func (p *Package) Parts() []*Part {
	result := make([]*Part, 0, len(p.order))
	for _, partPath := range p.order {
		result = append(result, p.parts[partPath])
	}
	return result
}

// PartsByType returns all parts with the given content type, in order.
func (p *Package) PartsByType(contentType string) []*Part {
	var result []*Part
	for _, part := range p.Parts() {
		if part.ContentType == contentType {
			result = append(result, part)
		}
	}
	return result
}

// ModelParts returns the 3D model parts of the package. Parts referenced by
// a root-level model relationship come first; if no such relationship
// resolves, parts are discovered by content type instead.
func (p *Package) ModelParts() []*Part {
	var result []*Part
	seen := map[string]bool{}
	for _, rel := range p.Relationships {
		if rel.Type != ModelRelType || rel.Source != "" {
			continue
		}
		if part := p.Part(rel.Target); part != nil && !seen[part.Path] {
			seen[part.Path] = true
			result = append(result, part)
		}
	}
	if len(result) > 0 {
		return result
	}
	return p.PartsByType(ModelContentType)
}

// AddRelationship records a relationship to be written to the appropriate
// _rels file. Duplicates (same source, target and type) collapse.
func (p *Package) AddRelationship(rel Relationship) {
	for _, existing := range p.Relationships {
		if existing.Source == rel.Source && existing.Target == rel.Target && existing.Type == rel.Type {
			return
		}
	}
	p.Relationships = append(p.Relationships, rel)
}

func (p *Package) removePart(partPath string) {
	partPath = normalizePath(partPath)
	if _, ok := p.parts[partPath]; !ok {
		return
	}
	delete(p.parts, partPath)
	for i, other := range p.order {
		if other == partPath {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// readRelationships parses and removes every .rels part, accumulating the
// relationships they declare. Relationship files are regenerated on write.
func (p *Package) readRelationships() []string {
	var warnings []string
	for _, part := range p.Parts() {
		if !isRelsPath(part.Path) && part.ContentType != RelsContentType {
			continue
		}
		rels, relWarnings := parseRelationships(part)
		warnings = append(warnings, relWarnings...)
		p.Relationships = append(p.Relationships, rels...)
		p.removePart(part.Path)
	}
	return warnings
}

func parseRelationships(part *Part) ([]Relationship, []string) {
	base := relsBase(part.Path)

	root, err := xmldoc.Parse(part.Data)
	if err != nil {
		return nil, []string{fmt.Sprintf("relationship file %s has malformed XML: %v", part.Path, err)}
	}

	var result []Relationship
	var warnings []string
	for _, node := range root.FindAll(relsNamespace, "Relationship") {
		target, hasTarget := node.Attr("Target")
		relType, hasType := node.Attr("Type")
		if !hasTarget || !hasType {
			warnings = append(warnings, fmt.Sprintf("relationship in %s missing Target or Type", part.Path))
			continue
		}
		result = append(result, Relationship{
			ID:     node.AttrOr("Id", ""),
			Source: base,
			Target: resolveTarget(base, target),
			Type:   relType,
		})
	}
	return result, warnings
}

// relsBase returns the folder a _rels file applies to: the parent of the
// _rels folder, empty for the package root.
func relsBase(relsPath string) string {
	dir := path.Dir(relsPath) // ".../_rels"
	if path.Base(dir) == RelsFolder {
		dir = path.Dir(dir)
	}
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}

// resolveTarget evaluates a relationship target relative to its base folder.
// Absolute targets are package-rooted; the leading slash is dropped to match
// zip entry naming.
func resolveTarget(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return normalizePath(target)
	}
	return normalizePath(path.Join(base, target))
}

func isRelsPath(partPath string) bool {
	return strings.HasSuffix(partPath, ".rels") && path.Base(path.Dir(partPath)) == RelsFolder
}

func normalizePath(partPath string) string {
	partPath = strings.ReplaceAll(partPath, "\\", "/")
	return strings.TrimPrefix(partPath, "/")
}

// contentTypeRules holds the match rules of a content-types part, overrides
// before extension defaults, in priority order.
type contentTypeRules struct {
	overrides  []override
	extensions []extensionDefault
}

type override struct {
	partName    string
	contentType string
}

type extensionDefault struct {
	extension   string
	contentType string
}

func (r *contentTypeRules) assign(partPath string) string {
	for _, o := range r.overrides {
		if o.partName == partPath {
			return o.contentType
		}
	}
	for _, d := range r.extensions {
		if strings.HasSuffix(partPath, "."+d.extension) {
			return d.contentType
		}
	}
	return ""
}

// readContentTypes parses the [Content_Types].xml part. A missing or broken
// part degrades to the built-in defaults for .rels and .model so that the
// payload can still be recovered.
func readContentTypes(pkg *Package) (*contentTypeRules, []string) {
	rules := &contentTypeRules{}
	var warnings []string

	part := pkg.Part(ContentTypesPath)
	if part == nil {
		warnings = append(warnings, ContentTypesPath+" is missing")
	} else {
		root, err := xmldoc.Parse(part.Data)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s has malformed XML: %v", ContentTypesPath, err))
		} else {
			// Overrides take priority over extension defaults.
			for _, node := range root.FindAll(contentTypesNamespace, "Override") {
				partName, hasName := node.Attr("PartName")
				contentType, hasType := node.Attr("ContentType")
				if !hasName || !hasType {
					warnings = append(warnings, ContentTypesPath+": Override without part name or content type")
					continue
				}
				rules.overrides = append(rules.overrides, override{
					partName:    normalizePath(partName),
					contentType: contentType,
				})
			}
			for _, node := range root.FindAll(contentTypesNamespace, "Default") {
				extension, hasExt := node.Attr("Extension")
				contentType, hasType := node.Attr("ContentType")
				if !hasExt || !hasType {
					warnings = append(warnings, ContentTypesPath+": Default without extension or content type")
					continue
				}
				rules.extensions = append(rules.extensions, extensionDefault{
					extension:   extension,
					contentType: contentType,
				})
			}
		}
	}

	// Fallbacks get least priority so real data still wins.
	rules.extensions = append(rules.extensions,
		extensionDefault{extension: "rels", contentType: RelsContentType},
		extensionDefault{extension: "model", contentType: ModelContentType},
	)

	return rules, warnings
}

// Write serializes the package to zip bytes. The content-types part is
// written first, then the relationship files, then every payload part
// byte-for-byte, all with Deflate compression.
func (p *Package) Write() ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	contentTypes, err := p.buildContentTypes()
	if err != nil {
		return nil, fmt.Errorf("building content types: %w", err)
	}
	if err := writeEntry(writer, ContentTypesPath, contentTypes); err != nil {
		return nil, err
	}

	relsParts, err := p.buildRelationshipParts()
	if err != nil {
		return nil, fmt.Errorf("building relationships: %w", err)
	}
	for _, part := range relsParts {
		if err := writeEntry(writer, part.Path, part.Data); err != nil {
			return nil, err
		}
	}

	for _, part := range p.Parts() {
		if err := writeEntry(writer, part.Path, part.Data); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(writer *zip.Writer, name string, data []byte) error {
	header := &zip.FileHeader{Name: name, Method: zip.Deflate}
	w, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	return nil
}

// buildContentTypes produces the [Content_Types].xml payload: one Default
// entry per extension carrying its most common content type, plus Override
// entries for parts that deviate from their extension's default.
func (p *Package) buildContentTypes() ([]byte, error) {
	byExtension := map[string]map[string]int{}
	for _, part := range p.Parts() {
		if part.ContentType == "" {
			continue // opaque parts get no index entry
		}
		ext := extensionOf(part.Path)
		if ext == "" {
			continue
		}
		if byExtension[ext] == nil {
			byExtension[ext] = map[string]int{}
		}
		byExtension[ext][part.ContentType]++
	}

	mostCommon := map[string]string{}
	for ext, counts := range byExtension {
		best, bestCount := "", -1
		for contentType, count := range counts {
			if count > bestCount || (count == bestCount && contentType < best) {
				best, bestCount = contentType, count
			}
		}
		mostCommon[ext] = best
	}

	// Parts the codec writes itself always keep their canonical types.
	mostCommon["rels"] = RelsContentType
	mostCommon["model"] = ModelContentType

	root := &xmldoc.Element{Space: contentTypesNamespace, Name: "Types"}
	extensions := make([]string, 0, len(mostCommon))
	for ext := range mostCommon {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	for _, ext := range extensions {
		node := root.Add(contentTypesNamespace, "Default")
		node.SetAttr("Extension", ext)
		node.SetAttr("ContentType", mostCommon[ext])
	}

	for _, part := range p.Parts() {
		if part.ContentType == "" {
			continue
		}
		ext := extensionOf(part.Path)
		if ext == "" || part.ContentType != mostCommon[ext] {
			node := root.Add(contentTypesNamespace, "Override")
			node.SetAttr("PartName", "/"+part.Path)
			node.SetAttr("ContentType", part.ContentType)
		}
	}

	return xmldoc.Marshal(root)
}

// buildRelationshipParts groups relationships by source folder into .rels
// parts. Relationship IDs are renumbered rel0, rel1, ... across the whole
// archive. The package root always gets a .rels file with one relationship
// per model part, even if no other relationships exist.
func (p *Package) buildRelationshipParts() ([]*Part, error) {
	bySource := map[string][]Relationship{"": nil}
	for _, rel := range p.Relationships {
		bySource[rel.Source] = append(bySource[rel.Source], rel)
	}
	for _, part := range p.PartsByType(ModelContentType) {
		bySource[""] = append(bySource[""], Relationship{
			Source: "",
			Target: part.Path,
			Type:   ModelRelType,
		})
	}

	sources := make([]string, 0, len(bySource))
	for source := range bySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var result []*Part
	nextID := 0
	for _, source := range sources {
		rels := bySource[source]
		if len(rels) == 0 {
			continue
		}
		root := &xmldoc.Element{Space: relsNamespace, Name: "Relationships"}
		for _, rel := range rels {
			node := root.Add(relsNamespace, "Relationship")
			node.SetAttr("Id", fmt.Sprintf("rel%d", nextID))
			nextID++
			node.SetAttr("Target", "/"+rel.Target)
			node.SetAttr("Type", rel.Type)
		}
		data, err := xmldoc.Marshal(root)
		if err != nil {
			return nil, err
		}
		result = append(result, &Part{
			Path:        source + RelsFolder + "/.rels",
			ContentType: RelsContentType,
			Data:        data,
		})
	}
	return result, nil
}

func extensionOf(partPath string) string {
	ext := path.Ext(partPath)
	return strings.TrimPrefix(ext, ".")
}
