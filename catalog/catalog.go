// Package catalog holds the static workflow definitions: the ordered stages a
// reflection walks through and the categories a giver can pick in stage 1.
package catalog

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"sarthi/config"
)

type Stage struct {
	No     int    `json:"stage_no"`
	Name   string `json:"stage_name"`
	Prompt string `json:"prompt"`
	Active bool   `json:"active"`
}

type Category struct {
	No     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"-"`
}

// Catalog is read-only after New returns and safe for concurrent use.
type Catalog struct {
	stages     []Stage
	byNo       map[int]Stage
	categories []Category
	catByNo    map[int]Category
	catByName  map[string]Category
}

func New(stages []Stage, categories []Category) (*Catalog, error) {
	c := &Catalog{
		byNo:      make(map[int]Stage, len(stages)),
		catByNo:   make(map[int]Category, len(categories)),
		catByName: make(map[string]Category, len(categories)),
	}

	for _, s := range stages {
		if s.No < 1 {
			return nil, errors.Errorf("stage number must be >= 1, got %d", s.No)
		}
		if _, dup := c.byNo[s.No]; dup {
			return nil, errors.Errorf("duplicate stage number %d", s.No)
		}
		c.byNo[s.No] = s
		c.stages = append(c.stages, s)
	}
	sort.Slice(c.stages, func(i, j int) bool { return c.stages[i].No < c.stages[j].No })

	for _, cat := range categories {
		key := strings.ToLower(strings.TrimSpace(cat.Name))
		if key == "" {
			return nil, errors.Errorf("category %d has no name", cat.No)
		}
		if _, dup := c.catByNo[cat.No]; dup {
			return nil, errors.Errorf("duplicate category number %d", cat.No)
		}
		if _, dup := c.catByName[key]; dup {
			return nil, errors.Errorf("duplicate category name %q", cat.Name)
		}
		c.catByNo[cat.No] = cat
		c.catByName[key] = cat
		c.categories = append(c.categories, cat)
	}
	sort.Slice(c.categories, func(i, j int) bool { return c.categories[i].No < c.categories[j].No })

	return c, nil
}

// FromConfig builds the catalog from the workflow section of the configuration.
func FromConfig(cfg config.Configuration) (*Catalog, error) {
	stages := make([]Stage, 0, len(cfg.Workflow.Stages))
	for _, s := range cfg.Workflow.Stages {
		stages = append(stages, Stage{No: s.No, Name: s.Name, Prompt: s.Prompt, Active: s.Active == nil || *s.Active})
	}
	categories := make([]Category, 0, len(cfg.Workflow.Categories))
	for _, cat := range cfg.Workflow.Categories {
		categories = append(categories, Category{No: cat.No, Name: cat.Name, Active: cat.Active == nil || *cat.Active})
	}
	return New(stages, categories)
}

// Lookup returns the active stage with the given number. Missing and inactive
// stages both report false, which callers read as "workflow complete".
func (c *Catalog) Lookup(no int) (Stage, bool) {
	s, ok := c.byNo[no]
	if !ok || !s.Active {
		return Stage{}, false
	}
	return s, true
}

func (c *Catalog) First() (Stage, bool) {
	return c.Lookup(1)
}

// Last is the highest defined stage number, 0 when there are none.
func (c *Catalog) Last() int {
	if len(c.stages) == 0 {
		return 0
	}
	return c.stages[len(c.stages)-1].No
}

func (c *Catalog) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

func (c *Catalog) Category(no int) (Category, bool) {
	cat, ok := c.catByNo[no]
	return cat, ok
}

func (c *Catalog) CategoryByName(name string) (Category, bool) {
	cat, ok := c.catByName[strings.ToLower(strings.TrimSpace(name))]
	return cat, ok
}

// Categories returns every category, active or not, ordered by number.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// ActiveCategories lists the options offered to the giver in stage 1.
func (c *Catalog) ActiveCategories() []Category {
	out := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		if cat.Active {
			out = append(out, cat)
		}
	}
	return out
}
