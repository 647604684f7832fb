// Package content holds the page document model, the asset reference
// resolver and the persistence gateway that sit between the storefront's
// HTTP surface and the external commerce platform.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a handle or record id does not exist.
	ErrNotFound = errors.New("content: not found")
	// ErrInvalidInput is returned for malformed handles or documents.
	ErrInvalidInput = errors.New("content: invalid input")
)

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,254}$`)

// ValidHandle reports whether h can address a page document.
func ValidHandle(h string) bool {
	return handlePattern.MatchString(h)
}

// Section is one typed, orderable block of a page. Settings is open-schema;
// different section types store different shapes in it.
type Section struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Settings *Object `json:"settings"`
}

func (s Section) MarshalJSON() ([]byte, error) {
	type wire Section
	w := wire(s)
	if w.Settings == nil {
		w.Settings = NewObject()
	}
	return json.Marshal(w)
}

// PageContent is the whole document for one page handle. Section order is
// render order.
type PageContent struct {
	Sections []Section `json:"sections"`
	Slug     string    `json:"slug,omitempty"`
}

// Empty is the document served for handles that have never been saved.
func Empty() PageContent {
	return PageContent{Sections: []Section{}}
}

func (d PageContent) MarshalJSON() ([]byte, error) {
	type wire PageContent
	w := wire(d)
	if w.Sections == nil {
		w.Sections = []Section{}
	}
	return json.Marshal(w)
}

func (d *PageContent) UnmarshalJSON(data []byte) error {
	type wire PageContent
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Sections == nil {
		w.Sections = []Section{}
	}
	for i := range w.Sections {
		if w.Sections[i].Settings == nil {
			w.Sections[i].Settings = NewObject()
		}
	}
	*d = PageContent(w)
	return nil
}

// Clone returns a deep copy of d.
func (d PageContent) Clone() PageContent {
	out := PageContent{Slug: d.Slug, Sections: make([]Section, len(d.Sections))}
	for i, s := range d.Sections {
		out.Sections[i] = Section{ID: s.ID, Type: s.Type, Settings: s.Settings.Clone()}
	}
	return out
}

// Equal reports structural equality, including section order.
func (d PageContent) Equal(other PageContent) bool {
	if d.Slug != other.Slug || len(d.Sections) != len(other.Sections) {
		return false
	}
	for i, s := range d.Sections {
		o := other.Sections[i]
		if s.ID != o.ID || s.Type != o.Type || !s.Settings.Equal(o.Settings) {
			return false
		}
	}
	return true
}

// Validate checks the invariants the page builder relies on: every section
// has a type and an id unique within the document.
func (d PageContent) Validate() error {
	seen := make(map[string]int, len(d.Sections))
	for i, s := range d.Sections {
		if s.ID == "" {
			return fmt.Errorf("%w: sections[%d] has no id", ErrInvalidInput, i)
		}
		if s.Type == "" {
			return fmt.Errorf("%w: sections[%d] has no type", ErrInvalidInput, i)
		}
		if prev, ok := seen[s.ID]; ok {
			return fmt.Errorf("%w: sections[%d] reuses id %q from sections[%d]", ErrInvalidInput, i, s.ID, prev)
		}
		seen[s.ID] = i
	}
	return nil
}

// DefaultTemplate is the document a new editor session starts from.
func DefaultTemplate(slug string) PageContent {
	hero := NewObject()
	hero.Set("heading", StringValue("Welcome to our store"))
	hero.Set("subheading", StringValue("Discover this season's collection"))
	hero.Set("image_id", StringValue(""))
	hero.Set("image", StringValue(""))
	hero.Set("cta_label", StringValue("Shop now"))
	hero.Set("cta_url", StringValue("/collections/all"))

	grid := NewObject()
	grid.Set("heading", StringValue("Featured products"))
	grid.Set("collection_handle", StringValue("frontpage"))
	grid.Set("columns", NumberValue("4"))
	grid.Set("products_to_show", NumberValue("8"))

	quote := NewObject()
	quote.Set("quote", StringValue("Quality you can feel."))
	quote.Set("author", StringValue(""))

	return PageContent{
		Slug: slug,
		Sections: []Section{
			{ID: uuid.NewString(), Type: "hero", Settings: hero},
			{ID: uuid.NewString(), Type: "product_grid", Settings: grid},
			{ID: uuid.NewString(), Type: "quote", Settings: quote},
		},
	}
}
