package services

import (
	"fmt"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/record"
)

// BatchTab is the record list of one entity type.
type BatchTab struct {
	Name       string
	EntityType schema.EntityType
	Records    []record.RawRecord
}

// Batch is everything one import run works on.
type Batch struct {
	Format record.Format
	Tabs   []BatchTab
}

func (b Batch) RowCount() int {
	n := 0
	for _, t := range b.Tabs {
		n += len(t.Records)
	}
	return n
}

// Types lists the entity types of the batch in tab order, without repeats.
func (b Batch) Types() []schema.EntityType {
	var out []schema.EntityType
	seen := map[schema.EntityType]bool{}
	for _, t := range b.Tabs {
		if !seen[t.EntityType] {
			seen[t.EntityType] = true
			out = append(out, t.EntityType)
		}
	}
	return out
}

// BatchFromFile maps the tabs of a parsed file to entity types. A single
// unnamed tab is taken to hold records of fallback. Tabs that match no entity
// type are skipped and reported as warnings.
func BatchFromFile(f *record.File, fallback schema.EntityType) (Batch, []Finding) {
	b := Batch{Format: f.Format}
	var warnings []Finding
	for _, tab := range f.Tabs {
		et, err := schema.FromTab(tab.Name)
		if err != nil {
			if fallback != "" && (tab.Name == "" || len(f.Tabs) == 1) {
				et = fallback
			} else {
				warnings = append(warnings, Finding{Tab: tab.Name, Message: fmt.Sprintf("%s; tab ignored", err)})
				continue
			}
		}
		b.Tabs = append(b.Tabs, BatchTab{Name: tab.Name, EntityType: et, Records: tab.Records})
	}
	return b, warnings
}
