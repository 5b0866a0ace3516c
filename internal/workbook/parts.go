package workbook

import (
	"encoding/xml"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
)

const (
	drawingPartPrefix = "xl/drawings/drawing"
	chartPartPrefix   = "xl/charts/chart"
)

// relsPart is an OPC relationships part.
type relsPart struct {
	XMLName       xml.Name
	Relationships []relationship `xml:"Relationship"`
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// removeOrphanedCharts drops drawing and chart parts no sheet links to any
// more, with their .rels parts and content type overrides, then renumbers
// the survivors from 1. excelize's DeleteSheet leaves the parts behind, and
// AddChart names new parts by counting the existing ones, so the numbering
// must have no gaps before the next AddChart.
func (w *Workbook) removeOrphanedCharts() error {
	drawings := make(map[string]bool)
	charts := make(map[string]bool)
	for _, p := range w.partNames() {
		switch {
		case isXMLPart(p, drawingPartPrefix):
			drawings[p] = false
		case isXMLPart(p, chartPartPrefix):
			charts[p] = false
		}
	}
	if len(drawings) == 0 && len(charts) == 0 {
		return nil
	}

	for _, p := range w.partNames() {
		if !strings.HasPrefix(p, "xl/worksheets/_rels/") && !strings.HasPrefix(p, "xl/chartsheets/_rels/") {
			continue
		}
		if err := w.markTargets(p, drawings); err != nil {
			return err
		}
	}
	for d, used := range drawings {
		if !used {
			continue
		}
		if err := w.markTargets(relsPartFor(d), charts); err != nil {
			return err
		}
	}

	removed := make(map[string]bool)
	for _, set := range []map[string]bool{drawings, charts} {
		for p, used := range set {
			if used {
				continue
			}
			w.deletePart(p)
			w.deletePart(relsPartFor(p))
			removed["/"+p] = true
		}
	}
	if ct := w.f.ContentTypes; ct != nil && len(removed) > 0 {
		kept := ct.Overrides[:0]
		for _, o := range ct.Overrides {
			if !removed[o.PartName] {
				kept = append(kept, o)
			}
		}
		ct.Overrides = kept
	}

	if err := w.renumber(drawingPartPrefix, usedParts(drawings)); err != nil {
		return err
	}
	return w.renumber(chartPartPrefix, usedParts(charts))
}

// markTargets flags every part in set that relsPart links to.
func (w *Workbook) markTargets(relsPath string, set map[string]bool) error {
	rels, err := w.readRels(relsPath)
	if err != nil || rels == nil {
		return err
	}
	for _, r := range rels.Relationships {
		if t, ok := resolveTarget(relsPath, r); ok {
			if _, tracked := set[t]; tracked {
				set[t] = true
			}
		}
	}
	return nil
}

// renumber renames parts to <prefix>1.xml .. <prefix>N.xml in their current
// order and rewrites every link to a renamed part.
func (w *Workbook) renumber(prefix string, parts []string) error {
	sort.Slice(parts, func(i, j int) bool {
		a, b := partIndex(parts[i], prefix), partIndex(parts[j], prefix)
		if a != b {
			return a < b
		}
		return parts[i] < parts[j]
	})

	renamed := make(map[string]string)
	// Ascending order only ever moves a part onto a name already vacated.
	for i, old := range parts {
		name := prefix + strconv.Itoa(i+1) + ".xml"
		if name == old {
			continue
		}
		w.movePart(old, name)
		w.movePart(relsPartFor(old), relsPartFor(name))
		renamed[old] = name
	}
	if len(renamed) == 0 {
		return nil
	}

	if ct := w.f.ContentTypes; ct != nil {
		for i, o := range ct.Overrides {
			if name, ok := renamed[strings.TrimPrefix(o.PartName, "/")]; ok {
				ct.Overrides[i].PartName = "/" + name
			}
		}
	}

	for _, p := range w.partNames() {
		if !strings.HasSuffix(p, ".rels") {
			continue
		}
		if err := w.relink(p, renamed); err != nil {
			return err
		}
	}
	return nil
}

// relink points the links of relsPath at renamed parts. A changed part is
// stored back as raw XML so excelize parses it afresh.
func (w *Workbook) relink(relsPath string, renamed map[string]string) error {
	rels, err := w.readRels(relsPath)
	if err != nil || rels == nil {
		return err
	}
	changed := false
	for i, r := range rels.Relationships {
		t, ok := resolveTarget(relsPath, r)
		if !ok {
			continue
		}
		name, ok := renamed[t]
		if !ok {
			continue
		}
		if strings.HasPrefix(r.Target, "/") {
			rels.Relationships[i].Target = "/" + name
		} else {
			rels.Relationships[i].Target = path.Join(path.Dir(r.Target), path.Base(name))
		}
		changed = true
	}
	if !changed {
		return nil
	}

	out, err := xml.Marshal(rels)
	if err != nil {
		return fmt.Errorf("encode %s: %w", relsPath, err)
	}
	w.f.Relationships.Delete(relsPath)
	w.f.Pkg.Store(relsPath, append([]byte(xml.Header), out...))
	return nil
}

// readRels parses the relationships part at relsPath, or returns nil when it
// does not exist.
func (w *Workbook) readRels(relsPath string) (*relsPart, error) {
	var data []byte
	if v, ok := w.f.Relationships.Load(relsPath); ok && v != nil {
		// Parsed rels are newer than the raw bytes in Pkg.
		b, err := xml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", relsPath, err)
		}
		data = b
	} else if v, ok := w.f.Pkg.Load(relsPath); ok {
		data, _ = v.([]byte)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var rels relsPart
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", relsPath, err)
	}
	return &rels, nil
}

// partNames lists every part the file holds, whether still raw or already
// parsed by excelize.
func (w *Workbook) partNames() []string {
	seen := make(map[string]struct{})
	collect := func(k, _ any) bool {
		if s, ok := k.(string); ok {
			seen[s] = struct{}{}
		}
		return true
	}
	w.f.Pkg.Range(collect)
	w.f.Drawings.Range(collect)
	w.f.Relationships.Range(collect)

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (w *Workbook) deletePart(p string) {
	w.f.Pkg.Delete(p)
	w.f.Drawings.Delete(p)
	w.f.Relationships.Delete(p)
}

func (w *Workbook) movePart(from, to string) {
	if v, ok := w.f.Pkg.LoadAndDelete(from); ok {
		w.f.Pkg.Store(to, v)
	}
	if v, ok := w.f.Drawings.LoadAndDelete(from); ok {
		w.f.Drawings.Store(to, v)
	}
	if v, ok := w.f.Relationships.LoadAndDelete(from); ok {
		w.f.Relationships.Store(to, v)
	}
}

// resolveTarget returns the package path r links to. Rels parts live in
// <dir>/_rels/ and relative targets are resolved against <dir>.
func resolveTarget(relsPath string, r relationship) (string, bool) {
	if r.TargetMode == "External" || r.Target == "" {
		return "", false
	}
	if strings.HasPrefix(r.Target, "/") {
		return strings.TrimPrefix(r.Target, "/"), true
	}
	return path.Join(path.Dir(path.Dir(relsPath)), r.Target), true
}

// relsPartFor returns the .rels part of p, e.g. xl/drawings/drawing1.xml ->
// xl/drawings/_rels/drawing1.xml.rels.
func relsPartFor(p string) string {
	return path.Join(path.Dir(p), "_rels", path.Base(p)+".rels")
}

func isXMLPart(p, prefix string) bool {
	return strings.HasPrefix(p, prefix) && strings.HasSuffix(p, ".xml")
}

func partIndex(p, prefix string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(p, prefix), ".xml"))
	if err != nil {
		return math.MaxInt
	}
	return n
}

func usedParts(set map[string]bool) []string {
	var parts []string
	for p, used := range set {
		if used {
			parts = append(parts, p)
		}
	}
	return parts
}
