package models

import "time"

// CurrentSchemaVersion is stamped on every persisted document. Documents
// without the field predate versioning and are treated as version 1.
const CurrentSchemaVersion = 1

const defaultColor = "#FFF"

// Config holds the user's display configuration: one color per category and
// one per status. Both key sets are closed enumerations.
type Config struct {
	Colors map[Category]string `json:"colors"`
	Status map[Status]string   `json:"status"`
}

// DefaultConfig returns the initial configuration with every color unset.
func DefaultConfig() Config {
	cfg := Config{
		Colors: make(map[Category]string, len(Categories())),
		Status: make(map[Status]string, len(Statuses())),
	}
	for _, c := range Categories() {
		cfg.Colors[c] = defaultColor
	}
	for _, s := range Statuses() {
		cfg.Status[s] = defaultColor
	}
	return cfg
}

// Document is the full persisted state for one user: the tracked items, the
// display configuration, and the timestamp of the last persisted change.
type Document struct {
	Items         []Item `json:"items"`
	Config        Config `json:"config"`
	LastUpdated   string `json:"lastUpdated"`
	SchemaVersion int    `json:"schemaVersion,omitempty"`
}

// DefaultDocument returns the canonical empty document. It doubles as the
// sentinel for "no real data yet" during reconciliation.
func DefaultDocument() Document {
	return Document{
		Items:         []Item{},
		Config:        DefaultConfig(),
		LastUpdated:   time.Now().UTC().Format(time.RFC3339),
		SchemaVersion: CurrentSchemaVersion,
	}
}

// IsDefault reports whether the document is structurally identical to the
// canonical empty document, ignoring lastUpdated and the schema version.
// The comparison is written out field by field so it stays well-defined as
// the document shape evolves.
func (d Document) IsDefault() bool {
	if len(d.Items) != 0 {
		return false
	}
	return d.Config.equal(DefaultConfig())
}

func (c Config) equal(other Config) bool {
	if len(c.Colors) != len(other.Colors) || len(c.Status) != len(other.Status) {
		return false
	}
	for k, v := range other.Colors {
		if c.Colors[k] != v {
			return false
		}
	}
	for k, v := range other.Status {
		if c.Status[k] != v {
			return false
		}
	}
	return true
}

// Touch stamps the document with the current time and schema version.
func (d *Document) Touch() {
	d.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	d.SchemaVersion = CurrentSchemaVersion
}

// Normalize backfills fields older persisted documents may lack.
func (d *Document) Normalize() {
	if d.Items == nil {
		d.Items = []Item{}
	}
	if d.Config.Colors == nil || d.Config.Status == nil {
		def := DefaultConfig()
		if d.Config.Colors == nil {
			d.Config.Colors = def.Colors
		}
		if d.Config.Status == nil {
			d.Config.Status = def.Status
		}
	}
	if d.SchemaVersion == 0 {
		d.SchemaVersion = 1
	}
}
