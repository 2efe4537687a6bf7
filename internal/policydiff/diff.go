package policydiff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a class rule, grant or root being added,
// removed or modified.
type RuleChange struct {
	Type    string `json:"type"` // "added", "removed", "changed"
	Section string `json:"section"`
	Rule    string `json:"rule"`
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policy configurations.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
	// Looser is true if any change admits something the old policy did
	// not.
	Looser bool `json:"looser"`
}

// Diff compares two configurations and returns the differences.
func Diff(old, new *policy.Config) *DiffResult {
	r := &DiffResult{}

	for _, mech := range model.Mechanisms {
		o, n := old.Enforcement.For(mech), new.Enforcement.For(mech)
		if o == n {
			continue
		}
		r.addChange(Change{
			Field:   "enforcement." + string(mech),
			Old:     strconv.FormatBool(o),
			New:     strconv.FormatBool(n),
			Comment: boolComment(o, n),
		})
	}

	if o, n := old.Redact.IncludeDetail, new.Redact.IncludeDetail; o != n {
		r.addChange(Change{
			Field:   "redact.include_detail",
			Old:     strconv.FormatBool(o),
			New:     strconv.FormatBool(n),
			Comment: boolComment(!o, !n),
		})
	}

	if o, n := old.Audit.Path, new.Audit.Path; o != n {
		c := Change{Field: "audit.path", Old: o, New: n}
		switch {
		case n == "":
			c.Comment = "looser"
		case o == "":
			c.Comment = "stricter"
		}
		r.addChange(c)
	}

	oldClasses, newClasses := old.ClassPatterns(), new.ClassPatterns()
	diffSet(r, "classes.deny", oldClasses.Deny, newClasses.Deny, "stricter", "looser")
	diffSet(r, "classes.allow", oldClasses.Allow, newClasses.Allow, "looser", "stricter")
	diffSet(r, "grants", old.Grants, new.Grants, "looser", "stricter")
	diffRoots(r, old.Roots, new.Roots)
	diffSet(r, "alerts", alertURLs(old), alertURLs(new), "", "")
	diffSet(r, "redact.safe_paths", old.Redact.SafePaths, new.Redact.SafePaths, "looser", "stricter")

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

func (r *DiffResult) addChange(c Change) {
	if c.Comment == "looser" {
		r.Looser = true
	}
	r.Changes = append(r.Changes, c)
}

func (r *DiffResult) addRule(rc RuleChange) {
	if rc.Comment == "looser" {
		r.Looser = true
	}
	r.RuleChanges = append(r.RuleChanges, rc)
}

// boolComment treats true as the enforcing value.
func boolComment(old, new bool) string {
	if new && !old {
		return "stricter"
	}
	return "looser"
}

// diffSet records entries added to or removed from a list section.
func diffSet(r *DiffResult, section string, oldList, newList []string, addedComment, removedComment string) {
	oldSet := toSet(oldList)
	newSet := toSet(newList)

	for _, k := range sortedKeys(newSet) {
		if !oldSet[k] {
			r.addRule(RuleChange{Type: "added", Section: section, Rule: k, Comment: addedComment})
		}
	}
	for _, k := range sortedKeys(oldSet) {
		if !newSet[k] {
			r.addRule(RuleChange{Type: "removed", Section: section, Rule: k, Comment: removedComment})
		}
	}
}

func diffRoots(r *DiffResult, oldRoots, newRoots []policy.RootConfig) {
	oldMap := make(map[string]policy.RootConfig)
	for _, rc := range oldRoots {
		oldMap[rc.Path] = rc
	}
	newMap := make(map[string]policy.RootConfig)
	for _, rc := range newRoots {
		newMap[rc.Path] = rc
	}

	for _, rc := range newRoots {
		prev, exists := oldMap[rc.Path]
		if !exists {
			r.addRule(RuleChange{Type: "added", Section: "roots", Rule: rootLabel(rc), Comment: "looser"})
			continue
		}
		if rootLabel(prev) == rootLabel(rc) {
			continue
		}
		comment := "stricter"
		if widened(prev.Ops, rc.Ops) || len(rc.Protected) < len(prev.Protected) {
			comment = "looser"
		}
		r.addRule(RuleChange{
			Type:    "changed",
			Section: "roots",
			Rule:    rootLabel(rc) + " (was: " + rootLabel(prev) + ")",
			Comment: comment,
		})
	}
	for _, rc := range oldRoots {
		if _, exists := newMap[rc.Path]; !exists {
			r.addRule(RuleChange{Type: "removed", Section: "roots", Rule: rootLabel(rc), Comment: "stricter"})
		}
	}
}

func rootLabel(rc policy.RootConfig) string {
	ops := append([]string(nil), rc.Ops...)
	sort.Strings(ops)
	label := rc.Path + " ops=" + strings.Join(ops, ",")
	if rc.Kind != "" {
		label += " kind=" + string(rc.Kind)
	}
	if len(rc.Protected) > 0 {
		protected := append([]string(nil), rc.Protected...)
		sort.Strings(protected)
		label += " protected=" + strings.Join(protected, ",")
	}
	return label
}

// widened reports whether next permits an operation prev did not.
func widened(prev, next []string) bool {
	prevSet := toSet(prev)
	if prevSet["all"] || prevSet["*"] {
		return false
	}
	for _, op := range next {
		if !prevSet[op] {
			return true
		}
	}
	return false
}

func alertURLs(cfg *policy.Config) []string {
	urls := make([]string, 0, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		urls = append(urls, a.URL)
	}
	return urls
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
