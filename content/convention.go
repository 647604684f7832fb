package content

import "strings"

// DefaultReferencePrefix marks platform global ids that have not been turned
// into public URLs yet.
const DefaultReferencePrefix = "gid://"

// FieldPair names a settings key holding a reference id and the sibling key
// that receives the resolved URL.
type FieldPair struct {
	Reference string
	Target    string
}

// Convention is the single place that decides whether a settings object
// carries an unresolved asset reference. Section types are never special-cased.
type Convention struct {
	Prefix string
	Pairs  []FieldPair
}

// DefaultConvention pairs the storefront's image, video and file reference
// keys with the keys that receive their URLs.
func DefaultConvention() Convention {
	return Convention{
		Prefix: DefaultReferencePrefix,
		Pairs: []FieldPair{
			{Reference: "image_id", Target: "image"},
			{Reference: "mobile_image_id", Target: "mobile_image"},
			{Reference: "poster_image_id", Target: "poster_image"},
			{Reference: "video_id", Target: "video"},
			{Reference: "file_id", Target: "file"},
		},
	}
}

// IsReference reports whether s carries the reserved reference prefix.
func (c Convention) IsReference(s string) bool {
	return c.Prefix != "" && strings.HasPrefix(s, c.Prefix)
}

type pendingField struct {
	target    string
	reference string
}

// pending lists the pairs of obj whose target still needs a URL. A target
// that already holds anything other than null, "" or another reference is
// treated as settled and left alone.
func (c Convention) pending(obj *Object) []pendingField {
	var out []pendingField
	for _, pair := range c.Pairs {
		refVal, ok := obj.Get(pair.Reference)
		if !ok {
			continue
		}
		ref, ok := refVal.AsString()
		if !ok || !c.IsReference(ref) {
			continue
		}
		if c.settled(obj, pair.Target) {
			continue
		}
		out = append(out, pendingField{target: pair.Target, reference: ref})
	}
	return out
}

func (c Convention) settled(obj *Object, target string) bool {
	v, ok := obj.Get(target)
	if !ok || v.IsNull() {
		return false
	}
	s, ok := v.AsString()
	if !ok {
		return true
	}
	return strings.TrimSpace(s) != "" && !c.IsReference(s)
}
