// Package catalog implements the POI Catalog (C1): loading POI records for
// a city from disk, validating the combo-group/POI invariant, and exposing
// a queryable in-memory view enriched with resolved combo groups.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/uber/h3-go/v4"

	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

// h3Resolution is the H3 cell resolution whose average cell diameter
// approximates 2km, so the Selector's backup-grouping proximity test
// (spec §4.4) becomes an O(1) cell lookup instead of an all-pairs scan.
// Resolution 7 cells have an average edge length of ~1.4km.
const h3Resolution = 7

// Catalog is a city's in-memory, enriched POI view.
type Catalog struct {
	City        string
	pois        map[string]*model.POI // slug -> POI
	order       []string               // insertion order, for stable listing
	comboGroups map[string]*model.ComboGroup
	h3Index     map[h3.Cell][]string // cell -> POI slugs, for proximity grouping
}

// poiRecord is the on-disk shape of a POI file. The schema is permissive:
// unknown keys are skipped by encoding/json by default.
type poiRecord = model.POI

// LoadCity loads all POI records for a city from rootDir/<city>/pois/*.json
// plus rootDir/<city>/combo_groups.json, validates the bidirectional
// combo-group invariant, and returns the enriched catalog. Malformed POI
// records produce a warning and are dropped, not a failure.
func LoadCity(rootDir, city string) (*Catalog, []model.Issue, error) {
	cityDir := filepath.Join(rootDir, city)
	poiDir := filepath.Join(cityDir, "pois")

	entries, err := os.ReadDir(poiDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, planerr.NotFound("CITY_NOT_FOUND", fmt.Sprintf("no POI directory for city %q", city))
		}
		return nil, nil, planerr.IO("CATALOG_READ_FAILED", "failed to read POI directory", err)
	}

	cat := &Catalog{
		City:        city,
		pois:        make(map[string]*model.POI),
		comboGroups: make(map[string]*model.ComboGroup),
		h3Index:     make(map[h3.Cell][]string),
	}

	var issues []model.Issue
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(poiDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, model.Issue{Severity: model.IssueWarning, Message: fmt.Sprintf("unreadable POI file %s: %v", e.Name(), err)})
			continue
		}
		var rec poiRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			issues = append(issues, model.Issue{Severity: model.IssueWarning, Message: fmt.Sprintf("malformed POI file %s: %v", e.Name(), err)})
			continue
		}
		if rec.Slug == "" {
			rec.Slug = slugify(strings.TrimSuffix(e.Name(), ".json"))
		}
		p := rec
		cat.pois[p.Slug] = &p
		cat.order = append(cat.order, p.Slug)
	}

	groups, groupIssues := loadComboGroups(cityDir, city)
	issues = append(issues, groupIssues...)
	for _, g := range groups {
		cat.comboGroups[g.Slug] = g
	}

	issues = append(issues, cat.enrich()...)
	cat.buildH3Index()

	return cat, issues, nil
}

func loadComboGroups(cityDir, city string) ([]*model.ComboGroup, []model.Issue) {
	path := filepath.Join(cityDir, "combo_groups.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil // no combo groups file: not an error, just none
	}
	var groups []*model.ComboGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, []model.Issue{{Severity: model.IssueWarning, Message: fmt.Sprintf("malformed combo_groups.json: %v", err)}}
	}
	for _, g := range groups {
		if g.City == "" {
			g.City = city
		}
	}
	return groups, nil
}

// enrich resolves each POI's combo-group IDs into ComboGroups, dropping
// unknown IDs with a warning.
func (c *Catalog) enrich() []model.Issue {
	var issues []model.Issue
	for _, slug := range c.order {
		p := c.pois[slug]
		var resolved []*model.ComboGroup
		var kept []string
		for _, gid := range p.ComboGroupIDs {
			g, ok := c.comboGroups[gid]
			if !ok {
				issues = append(issues, model.Issue{Severity: model.IssueWarning, POI: slug, Message: fmt.Sprintf("unknown combo-group id %q", gid)})
				continue
			}
			resolved = append(resolved, g)
			kept = append(kept, gid)
		}
		p.ComboGroups = resolved
		p.ComboGroupIDs = kept
	}
	return issues
}

func (c *Catalog) buildH3Index() {
	for _, slug := range c.order {
		p := c.pois[slug]
		if p.Coords.Lat == 0 && p.Coords.Lon == 0 {
			continue
		}
		cell := h3.LatLngToCell(h3.NewLatLng(p.Coords.Lat, p.Coords.Lon), h3Resolution)
		c.h3Index[cell] = append(c.h3Index[cell], slug)
	}
}

// List returns all POIs in stable (load) order.
func (c *Catalog) List() []*model.POI {
	out := make([]*model.POI, 0, len(c.order))
	for _, slug := range c.order {
		out = append(out, c.pois[slug])
	}
	return out
}

// Get returns the POI with the given slug.
func (c *Catalog) Get(slug string) (*model.POI, error) {
	p, ok := c.pois[slug]
	if !ok {
		return nil, planerr.NotFound("POI_NOT_FOUND", fmt.Sprintf("no POI with slug %q", slug))
	}
	return p, nil
}

// ComboGroups returns all combo groups for the city.
func (c *Catalog) ComboGroups() []*model.ComboGroup {
	out := make([]*model.ComboGroup, 0, len(c.comboGroups))
	for _, g := range c.comboGroups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// NearbySlugs returns POI slugs within the same or adjacent H3 cells as p,
// a cheap pre-filter for the exact haversine proximity check in pkg/geo.
func (c *Catalog) NearbySlugs(p *model.POI) []string {
	cell := h3.LatLngToCell(h3.NewLatLng(p.Coords.Lat, p.Coords.Lon), h3Resolution)
	neighbors, err := cell.GridDisk(1)
	if err != nil {
		return append([]string(nil), c.h3Index[cell]...)
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range neighbors {
		for _, slug := range c.h3Index[n] {
			if !seen[slug] {
				seen[slug] = true
				out = append(out, slug)
			}
		}
	}
	return out
}

// Validate checks the bidirectional combo-group/POI invariant: every group
// member must list the group, and every POI's listed group must contain it.
func (c *Catalog) Validate() []model.Issue {
	var issues []model.Issue

	for _, g := range c.comboGroups {
		for _, memberName := range g.Members {
			p := c.findByName(memberName)
			if p == nil {
				issues = append(issues, model.Issue{Severity: model.IssueError, Group: g.Slug, Message: fmt.Sprintf("combo group %q references unknown member %q", g.Slug, memberName)})
				continue
			}
			if !containsString(p.ComboGroupIDs, g.Slug) {
				issues = append(issues, model.Issue{Severity: model.IssueError, Group: g.Slug, POI: p.Slug, Message: fmt.Sprintf("POI %q missing back-reference to group %q", p.Slug, g.Slug)})
			}
		}
	}

	for _, slug := range c.order {
		p := c.pois[slug]
		for _, gid := range p.ComboGroupIDs {
			g, ok := c.comboGroups[gid]
			if !ok {
				continue // already warned in enrich
			}
			if !containsString(g.Members, p.Name) {
				issues = append(issues, model.Issue{Severity: model.IssueError, Group: gid, POI: slug, Message: fmt.Sprintf("group %q missing member %q", gid, p.Name)})
			}
		}
	}

	return issues
}

// Repair performs the idempotent bidirectional fix-up of combo-group/POI
// membership: whichever side is missing the back-reference gets it added.
// This is an admin/migration-path operation (spec.md's distillation dropped
// it; supplemented from scripts/migrate_combo_tickets.py), not invoked by
// the planner itself.
func (c *Catalog) Repair() (fixed int, remaining []model.Issue) {
	for _, g := range c.comboGroups {
		for _, memberName := range g.Members {
			p := c.findByName(memberName)
			if p == nil {
				remaining = append(remaining, model.Issue{Severity: model.IssueError, Group: g.Slug, Message: fmt.Sprintf("combo group %q references unknown member %q", g.Slug, memberName)})
				continue
			}
			if !containsString(p.ComboGroupIDs, g.Slug) {
				p.ComboGroupIDs = append(p.ComboGroupIDs, g.Slug)
				p.ComboGroups = append(p.ComboGroups, g)
				fixed++
			}
		}
	}
	for _, slug := range c.order {
		p := c.pois[slug]
		for _, gid := range p.ComboGroupIDs {
			g, ok := c.comboGroups[gid]
			if !ok {
				continue
			}
			if !containsString(g.Members, p.Name) {
				g.Members = append(g.Members, p.Name)
				fixed++
			}
		}
	}
	return fixed, remaining
}

func (c *Catalog) findByName(name string) *model.POI {
	for _, slug := range c.order {
		if c.pois[slug].Name == name {
			return c.pois[slug]
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "-")
	return s
}
