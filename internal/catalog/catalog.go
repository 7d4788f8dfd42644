// Package catalog provides the static stat catalog: the set of tracked
// stats with their display names, units, and associated badges.
//
// The catalog is used for human-facing output (monotonicity violation
// messages, prediction labels) and to validate stat keys on submission
// routes. It is compiled in; the aggregation backend owns the
// authoritative copy in its schema.
package catalog

import "sort"

// Stat describes one tracked measurement.
type Stat struct {
	Key      string `json:"stat"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Unit     string `json:"unit"`
	Badge    string `json:"badge,omitempty"`
}

var stats = map[string]Stat{
	"ap":                  {Key: "ap", Name: "AP", Nickname: "AP", Unit: "AP"},
	"explorer":            {Key: "explorer", Name: "Unique Portals Visited", Nickname: "Explorer", Unit: "portals", Badge: "Explorer"},
	"seer":                {Key: "seer", Name: "Portals Discovered", Nickname: "Seer", Unit: "portals", Badge: "Seer"},
	"trekker":             {Key: "trekker", Name: "Distance Walked", Nickname: "Trekker", Unit: "km", Badge: "Trekker"},
	"hacker":              {Key: "hacker", Name: "Hacks", Nickname: "Hacker", Unit: "hacks", Badge: "Hacker"},
	"builder":             {Key: "builder", Name: "Resonators Deployed", Nickname: "Builder", Unit: "resonators", Badge: "Builder"},
	"connector":           {Key: "connector", Name: "Links Created", Nickname: "Connector", Unit: "links", Badge: "Connector"},
	"mind-controller":     {Key: "mind-controller", Name: "Control Fields Created", Nickname: "Mind Controller", Unit: "fields", Badge: "Mind Controller"},
	"illuminator":         {Key: "illuminator", Name: "Mind Units Captured", Nickname: "Illuminator", Unit: "MUs", Badge: "Illuminator"},
	"recharger":           {Key: "recharger", Name: "XM Recharged", Nickname: "Recharger", Unit: "XM", Badge: "Recharger"},
	"liberator":           {Key: "liberator", Name: "Portals Captured", Nickname: "Liberator", Unit: "portals", Badge: "Liberator"},
	"pioneer":             {Key: "pioneer", Name: "Unique Portals Captured", Nickname: "Pioneer", Unit: "portals", Badge: "Pioneer"},
	"engineer":            {Key: "engineer", Name: "Mods Deployed", Nickname: "Engineer", Unit: "mods", Badge: "Engineer"},
	"purifier":            {Key: "purifier", Name: "Resonators Destroyed", Nickname: "Purifier", Unit: "resonators", Badge: "Purifier"},
	"guardian":            {Key: "guardian", Name: "Max Time Portal Held", Nickname: "Guardian", Unit: "days", Badge: "Guardian"},
	"specops":             {Key: "specops", Name: "Unique Missions Completed", Nickname: "SpecOps", Unit: "missions", Badge: "SpecOps"},
	"level":               {Key: "level", Name: "Level", Nickname: "Level", Unit: "AP"},
	"oldest-portal":       {Key: "oldest-portal", Name: "Current Time Portal Held", Nickname: "Guardian (current)", Unit: "days"},
	"distance-walked":     {Key: "distance-walked", Name: "Distance Walked", Nickname: "Trekker", Unit: "km"},
	"largest-field":       {Key: "largest-field", Name: "Largest Field MUs", Nickname: "Illuminator (largest)", Unit: "MUs"},
}

// Lookup returns the catalog entry for key and whether it exists.
func Lookup(key string) (Stat, bool) {
	s, ok := stats[key]
	return s, ok
}

// DisplayName returns the human name for a stat key, falling back to
// the key itself for stats the catalog does not know.
func DisplayName(key string) string {
	if s, ok := stats[key]; ok {
		return s.Name
	}
	return key
}

// Keys returns all known stat keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
