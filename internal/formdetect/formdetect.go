// Package formdetect finds groups of input elements that make up a logical
// form. Five independent strategies run over a DOM snapshot; their candidate
// groups are then deduplicated by element overlap.
package formdetect

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// Confidence weights per strategy.
const (
	ConfidenceTag     = 0.9
	ConfidenceKeyword = 0.8
	ConfidenceSubmit  = 0.8
	ConfidenceSpatial = 0.7
	ConfidenceIframe  = 0.6

	// customPenalty applies to groups made only of contenteditable or data-*
	// widgets.
	customPenalty = 0.1
)

// Config holds the geometric thresholds. Distances are in CSS pixels.
type Config struct {
	ClusterRadius    float64
	KeywordRadius    float64
	SubmitRadius     float64
	OverlapThreshold float64
	MinGroupSize     int
}

func DefaultConfig() Config {
	return Config{
		ClusterRadius:    300,
		KeywordRadius:    500,
		SubmitRadius:     800,
		OverlapThreshold: 0.5,
		MinGroupSize:     2,
	}
}

// Result is the outcome of detection on one page.
type Result struct {
	// Forms is ordered by confidence, descending.
	Forms []schemas.DetectedForm
	// ManualFrames are cross-origin frames that look like embedded contact
	// forms. They cannot be introspected and need a human.
	ManualFrames []schemas.FrameInfo
}

// Empty reports whether nothing at all was found.
func (r Result) Empty() bool { return len(r.Forms) == 0 && len(r.ManualFrames) == 0 }

type Detector struct {
	cfg    Config
	tax    *keywords.Taxonomy
	logger *zap.Logger
}

func New(cfg Config, tax *keywords.Taxonomy, logger *zap.Logger) *Detector {
	if tax == nil {
		tax = keywords.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinGroupSize < 1 {
		cfg.MinGroupSize = 1
	}
	return &Detector{cfg: cfg, tax: tax, logger: logger.Named("formdetect")}
}

// Detect runs every strategy over snap and returns the deduplicated groups.
// source labels groups from the main document; iframe groups are always
// labelled as such.
func (d *Detector) Detect(snap *schemas.DOMSnapshot, source schemas.SourceType) Result {
	if snap == nil {
		return Result{}
	}
	var candidates []schemas.DetectedForm
	collect := func(method schemas.DetectionMethod, groups []schemas.DetectedForm) {
		d.logger.Debug("Strategy finished.", zap.String("method", string(method)), zap.Int("groups", len(groups)))
		candidates = append(candidates, groups...)
	}

	mainDoc := visibleIn(snap.Elements, "")
	collect(schemas.MethodTag, d.byTag(snap, mainDoc, ""))
	if len(formsIn(snap.Forms, "")) == 0 {
		collect(schemas.MethodSpatial, d.bySpatial(mainDoc))
	}
	collect(schemas.MethodKeyword, d.byKeyword(snap, mainDoc))
	collect(schemas.MethodSubmit, d.bySubmit(snap, mainDoc))
	collect(schemas.MethodIframe, d.byIframe(snap))

	for i := range candidates {
		if candidates[i].SourceType == "" {
			candidates[i].SourceType = source
		}
		if candidates[i].SourceURL == "" {
			candidates[i].SourceURL = snap.URL
		}
	}

	return Result{
		Forms:        Dedup(candidates, d.cfg.OverlapThreshold),
		ManualFrames: d.manualFrames(snap.Frames),
	}
}

// byTag emits one group per form container in the given frame.
func (d *Detector) byTag(snap *schemas.DOMSnapshot, elems []schemas.ElementInfo, frame string) []schemas.DetectedForm {
	var groups []schemas.DetectedForm
	for _, f := range formsIn(snap.Forms, frame) {
		var members []schemas.ElementInfo
		for _, e := range elems {
			if e.Form == f.Ref {
				members = append(members, e)
			}
		}
		if len(members) == 0 {
			continue
		}
		groups = append(groups, newGroup(f.Ref, members, schemas.MethodTag, ConfidenceTag))
	}
	return groups
}

// bySpatial single-link clusters elements whose boxes lie within the cluster
// radius of each other.
func (d *Detector) bySpatial(elems []schemas.ElementInfo) []schemas.DetectedForm {
	if len(elems) < d.cfg.MinGroupSize {
		return nil
	}
	parent := make([]int, len(elems))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := 0; i < len(elems); i++ {
		for j := i + 1; j < len(elems); j++ {
			if elems[i].Box.Gap(elems[j].Box) <= d.cfg.ClusterRadius {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	clusters := make(map[int][]schemas.ElementInfo)
	var roots []int
	for i, e := range elems {
		r := find(i)
		if _, seen := clusters[r]; !seen {
			roots = append(roots, r)
		}
		clusters[r] = append(clusters[r], e)
	}

	var groups []schemas.DetectedForm
	for _, r := range roots {
		members := clusters[r]
		if len(members) < d.cfg.MinGroupSize {
			continue
		}
		groups = append(groups, newGroup(commonAncestor(members), members, schemas.MethodSpatial, ConfidenceSpatial))
	}
	return groups
}

// byKeyword anchors a radius search on text blocks carrying contact keywords.
func (d *Detector) byKeyword(snap *schemas.DOMSnapshot, elems []schemas.ElementInfo) []schemas.DetectedForm {
	var anchors []schemas.Box
	for _, t := range snap.Texts {
		if t.Frame == "" && keywords.ContainsAny(t.Text, d.tax.ContactText) {
			anchors = append(anchors, t.Box)
		}
	}
	return d.around(anchors, elems, d.cfg.KeywordRadius, schemas.MethodKeyword, ConfidenceKeyword)
}

// bySubmit anchors a radius search on visible submit-like controls.
func (d *Detector) bySubmit(snap *schemas.DOMSnapshot, elems []schemas.ElementInfo) []schemas.DetectedForm {
	var anchors []schemas.Box
	for _, c := range snap.Controls {
		if c.Frame != "" || !c.Visible || !d.isSubmitLike(c) {
			continue
		}
		anchors = append(anchors, c.Box)
	}
	return d.around(anchors, elems, d.cfg.SubmitRadius, schemas.MethodSubmit, ConfidenceSubmit)
}

func (d *Detector) isSubmitLike(c schemas.ControlInfo) bool {
	if keywords.ContainsAny(c.Text, d.tax.BackPhrases) {
		return false
	}
	switch c.Type {
	case "submit", "image":
		return true
	}
	return keywords.ContainsAny(c.Text, d.tax.ConfirmPhrases) || keywords.ContainsAny(c.Text, d.tax.TerminalPhrases)
}

func (d *Detector) around(anchors []schemas.Box, elems []schemas.ElementInfo, radius float64, method schemas.DetectionMethod, confidence float64) []schemas.DetectedForm {
	var groups []schemas.DetectedForm
	seen := make(map[string]bool)
	for _, a := range anchors {
		var members []schemas.ElementInfo
		var key strings.Builder
		for _, e := range elems {
			if a.Gap(e.Box) <= radius {
				members = append(members, e)
				key.WriteString(e.Ref)
			}
		}
		if len(members) < d.cfg.MinGroupSize || seen[key.String()] {
			continue
		}
		seen[key.String()] = true
		groups = append(groups, newGroup(commonAncestor(members), members, method, confidence))
	}
	return groups
}

// byIframe scans each same-origin frame on its own: form containers first,
// spatial clusters when the frame has none.
func (d *Detector) byIframe(snap *schemas.DOMSnapshot) []schemas.DetectedForm {
	var groups []schemas.DetectedForm
	for _, fr := range snap.Frames {
		if !fr.SameOrigin {
			continue
		}
		elems := visibleIn(snap.Elements, fr.Ref)
		if len(elems) == 0 {
			continue
		}
		found := d.byTag(snap, elems, fr.Ref)
		if len(found) == 0 {
			found = d.bySpatial(elems)
		}
		for i := range found {
			found[i].Method = schemas.MethodIframe
			found[i].Confidence = ConfidenceIframe
			found[i].SourceType = schemas.SourceIframe
			found[i].SourceURL = fr.Src
		}
		groups = append(groups, found...)
	}
	return groups
}

func (d *Detector) manualFrames(frames []schemas.FrameInfo) []schemas.FrameInfo {
	var out []schemas.FrameInfo
	for _, fr := range frames {
		if fr.SameOrigin || fr.Src == "" {
			continue
		}
		if keywords.ContainsAny(fr.Src, d.tax.FormHosts) || keywords.ContainsAny(fr.Src, d.tax.LinkTokens) {
			out = append(out, fr)
		}
	}
	return out
}

// Dedup orders groups by confidence (then size, then discovery order) and
// drops every group whose overlap with an already kept group reaches the
// threshold. Applying it to its own output changes nothing.
func Dedup(groups []schemas.DetectedForm, threshold float64) []schemas.DetectedForm {
	sorted := make([]schemas.DetectedForm, 0, len(groups))
	for _, g := range groups {
		if len(g.Fields) > 0 {
			sorted = append(sorted, g)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return len(sorted[i].Fields) > len(sorted[j].Fields)
	})

	var kept []schemas.DetectedForm
	var keptSets []map[string]struct{}
	for _, g := range sorted {
		set := g.Handles()
		redundant := false
		for _, k := range keptSets {
			if overlap(set, k) >= threshold {
				redundant = true
				break
			}
		}
		if redundant {
			continue
		}
		kept = append(kept, g)
		keptSets = append(keptSets, set)
	}
	return kept
}

// Overlap is |A∩B| / min(|A|,|B|) over the groups' element handles.
func Overlap(a, b schemas.DetectedForm) float64 {
	return overlap(a.Handles(), b.Handles())
}

func overlap(a, b map[string]struct{}) float64 {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	if len(small) == 0 {
		return 0
	}
	shared := 0
	for h := range small {
		if _, ok := large[h]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func newGroup(root string, members []schemas.ElementInfo, method schemas.DetectionMethod, confidence float64) schemas.DetectedForm {
	sort.SliceStable(members, func(i, j int) bool { return members[i].Order < members[j].Order })
	seen := make(map[string]bool, len(members))
	fields := make([]schemas.FieldDescriptor, 0, len(members))
	for _, e := range members {
		if seen[e.Ref] {
			continue
		}
		seen[e.Ref] = true
		fields = append(fields, schemas.FieldFromElement(e))
	}
	if allCustom(fields) {
		confidence -= customPenalty
	}
	return schemas.DetectedForm{Root: root, Fields: fields, Method: method, Confidence: confidence}
}

func allCustom(fields []schemas.FieldDescriptor) bool {
	for _, f := range fields {
		switch f.Tag {
		case "input", "textarea", "select":
			return false
		}
	}
	return len(fields) > 0
}

// commonAncestor returns the nearest ref shared by every member's ancestor
// chain, falling back to the document body.
func commonAncestor(members []schemas.ElementInfo) string {
	if len(members) == 0 {
		return "body"
	}
	for _, candidate := range members[0].Ancestors {
		shared := true
		for _, m := range members[1:] {
			if !contains(m.Ancestors, candidate) {
				shared = false
				break
			}
		}
		if shared {
			return candidate
		}
	}
	return "body"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func visibleIn(elems []schemas.ElementInfo, frame string) []schemas.ElementInfo {
	var out []schemas.ElementInfo
	for _, e := range elems {
		if e.Frame == frame && e.Visible {
			out = append(out, e)
		}
	}
	return out
}

func formsIn(forms []schemas.FormInfo, frame string) []schemas.FormInfo {
	var out []schemas.FormInfo
	for _, f := range forms {
		if f.Frame == frame {
			out = append(out, f)
		}
	}
	return out
}
