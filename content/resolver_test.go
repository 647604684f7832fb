package content

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocator struct {
	mu         sync.Mutex
	calls      map[string]int
	urls       map[string]string
	readyAfter map[string]int
	errs       map[string]error
	barrier    *sync.WaitGroup
}

func newFakeLocator() *fakeLocator {
	return &fakeLocator{
		calls:      map[string]int{},
		urls:       map[string]string{},
		readyAfter: map[string]int{},
		errs:       map[string]error{},
	}
}

func (f *fakeLocator) LocateAsset(ctx context.Context, id string) (string, bool, error) {
	if f.barrier != nil {
		f.barrier.Done()
		waitTimeout(f.barrier, time.Second)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return "", false, err
	}
	url, ok := f.urls[id]
	if !ok || f.calls[id] < f.readyAfter[id] {
		return "", false, nil
	}
	return url, true, nil
}

func (f *fakeLocator) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeLocator) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveResolution(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func testResolver(loc AssetLocator, attempts int) *Resolver {
	return NewResolver(loc, ResolverOptions{
		Convention:  Convention{Prefix: "ref://", Pairs: DefaultConvention().Pairs},
		MaxAttempts: attempts,
		Interval:    time.Millisecond,
	})
}

func mustDoc(t *testing.T, raw string) PageContent {
	t.Helper()
	var doc PageContent
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func settingString(t *testing.T, doc PageContent, section int, path ...Segment) string {
	t.Helper()
	v, ok := doc.Sections[section].Settings.GetPath(Path(path))
	require.True(t, ok, "missing %s", Path(path).String())
	s, ok := v.AsString()
	require.True(t, ok)
	return s
}

func TestResolvePatchesHeroImageAfterPolling(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://abc"] = "https://cdn/x.jpg"
	loc.readyAfter["ref://abc"] = 2

	doc := mustDoc(t, `{"sections":[{"id":"hero-1","type":"hero","settings":{"image_id":"ref://abc","image":""}}]}`)
	got := testResolver(loc, 5).Resolve(context.Background(), doc)

	assert.Equal(t, "https://cdn/x.jpg", settingString(t, got, 0, Key("image")))
	assert.Equal(t, "ref://abc", settingString(t, got, 0, Key("image_id")))
	assert.Equal(t, 2, loc.callsFor("ref://abc"))
}

func TestResolveSkipsAlreadyResolvedSibling(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://new"] = "https://cdn/new.jpg"
	loc.urls["ref://old"] = "https://cdn/other.jpg"

	doc := mustDoc(t, `{"sections":[
		{"id":"a","type":"hero","settings":{"image_id":"ref://old","image":"https://cdn/old.jpg"}},
		{"id":"b","type":"hero","settings":{"image_id":"ref://new"}}
	]}`)
	got := testResolver(loc, 3).Resolve(context.Background(), doc)

	assert.Equal(t, 0, loc.callsFor("ref://old"))
	assert.Equal(t, "https://cdn/old.jpg", settingString(t, got, 0, Key("image")))
	assert.Equal(t, "https://cdn/new.jpg", settingString(t, got, 1, Key("image")))
}

func TestResolveTreatsReferenceTargetAsUnresolved(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://abc"] = "https://cdn/x.jpg"

	doc := mustDoc(t, `{"sections":[{"id":"a","type":"hero","settings":{"image_id":"ref://abc","image":"ref://abc"}}]}`)
	got := testResolver(loc, 3).Resolve(context.Background(), doc)

	assert.Equal(t, "https://cdn/x.jpg", settingString(t, got, 0, Key("image")))
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://abc"] = "https://cdn/x.jpg"

	doc := mustDoc(t, `{"sections":[{"id":"a","type":"hero","settings":{"image_id":"ref://abc","image":"","slides":[{"image_id":"ref://abc"}]}}],"slug":"home"}`)
	before, err := json.Marshal(doc)
	require.NoError(t, err)
	snapshot := doc.Clone()

	got := testResolver(loc, 3).Resolve(context.Background(), doc)

	after, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.True(t, doc.Equal(snapshot))
	assert.False(t, got.Equal(doc))
}

func TestResolvePreservesSectionOrder(t *testing.T) {
	loc := newFakeLocator()
	for _, id := range []string{"ref://1", "ref://2", "ref://3"} {
		loc.urls[id] = "https://cdn/" + id[len("ref://"):] + ".jpg"
	}
	doc := mustDoc(t, `{"sections":[
		{"id":"s3","type":"hero","settings":{"image_id":"ref://3"}},
		{"id":"s1","type":"quote","settings":{"quote":"hi"}},
		{"id":"s2","type":"hero","settings":{"image_id":"ref://2"}},
		{"id":"s0","type":"grid","settings":{"items":[{"image_id":"ref://1"}]}}
	]}`)
	got := testResolver(loc, 2).Resolve(context.Background(), doc)

	require.Len(t, got.Sections, len(doc.Sections))
	for i := range doc.Sections {
		assert.Equal(t, doc.Sections[i].ID, got.Sections[i].ID)
		assert.Equal(t, doc.Sections[i].Type, got.Sections[i].Type)
	}
	assert.Equal(t, "https://cdn/1.jpg", settingString(t, got, 3, Key("items"), Index(0), Key("image")))
}

func TestResolveIsIdempotent(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://abc"] = "https://cdn/x.jpg"
	r := testResolver(loc, 3)

	doc := mustDoc(t, `{"sections":[{"id":"a","type":"hero","settings":{"image_id":"ref://abc","image":""}}]}`)
	once := r.Resolve(context.Background(), doc)
	callsAfterFirst := loc.totalCalls()
	twice := r.Resolve(context.Background(), once)

	assert.True(t, once.Equal(twice))
	assert.Equal(t, callsAfterFirst, loc.totalCalls())
}

func TestResolveGivesUpAfterMaxAttempts(t *testing.T) {
	loc := newFakeLocator()
	obs := &countingObserver{}
	r := NewResolver(loc, ResolverOptions{
		Convention:  Convention{Prefix: "ref://", Pairs: DefaultConvention().Pairs},
		MaxAttempts: 4,
		Interval:    time.Millisecond,
		Observer:    obs,
	})

	doc := mustDoc(t, `{"sections":[{"id":"a","type":"hero","settings":{"image_id":"ref://never","image":""}}]}`)
	got := r.Resolve(context.Background(), doc)

	assert.Equal(t, 4, loc.callsFor("ref://never"))
	assert.Equal(t, "", settingString(t, got, 0, Key("image")))
	assert.Equal(t, 1, obs.outcomes[OutcomeExhausted])
}

func TestResolveIsolatesFailures(t *testing.T) {
	loc := newFakeLocator()
	loc.errs["ref://bad"] = errors.New("platform unavailable")
	loc.urls["ref://good"] = "https://cdn/good.jpg"

	doc := mustDoc(t, `{"sections":[
		{"id":"a","type":"hero","settings":{"image_id":"ref://bad","image":""}},
		{"id":"b","type":"hero","settings":{"image_id":"ref://good","image":""}}
	]}`)
	got := testResolver(loc, 3).Resolve(context.Background(), doc)

	assert.Equal(t, 1, loc.callsFor("ref://bad"))
	assert.Equal(t, "", settingString(t, got, 0, Key("image")))
	assert.Equal(t, "https://cdn/good.jpg", settingString(t, got, 1, Key("image")))
}

func TestResolveWalksNestedArrays(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://deep"] = "https://cdn/deep.jpg"
	loc.urls["ref://video"] = "https://cdn/v.mp4"

	doc := mustDoc(t, `{"sections":[{"id":"a","type":"gallery","settings":{
		"rows":[[{"cells":[{"image_id":"ref://deep"}]}]],
		"media":{"video_id":"ref://video","video":null}
	}}]}`)
	got := testResolver(loc, 2).Resolve(context.Background(), doc)

	assert.Equal(t, "https://cdn/deep.jpg",
		settingString(t, got, 0, Key("rows"), Index(0), Index(0), Key("cells"), Index(0), Key("image")))
	assert.Equal(t, "https://cdn/v.mp4", settingString(t, got, 0, Key("media"), Key("video")))
}

func TestResolveDeduplicatesReferences(t *testing.T) {
	loc := newFakeLocator()
	loc.urls["ref://shared"] = "https://cdn/s.jpg"

	doc := mustDoc(t, `{"sections":[
		{"id":"a","type":"hero","settings":{"image_id":"ref://shared"}},
		{"id":"b","type":"hero","settings":{"image_id":"ref://shared","mobile_image_id":"ref://shared"}}
	]}`)
	got := testResolver(loc, 2).Resolve(context.Background(), doc)

	assert.Equal(t, 1, loc.callsFor("ref://shared"))
	assert.Equal(t, "https://cdn/s.jpg", settingString(t, got, 0, Key("image")))
	assert.Equal(t, "https://cdn/s.jpg", settingString(t, got, 1, Key("image")))
	assert.Equal(t, "https://cdn/s.jpg", settingString(t, got, 1, Key("mobile_image")))
}

func TestResolveFansOutConcurrently(t *testing.T) {
	loc := newFakeLocator()
	var barrier sync.WaitGroup
	barrier.Add(3)
	loc.barrier = &barrier
	for _, id := range []string{"ref://a", "ref://b", "ref://c"} {
		loc.urls[id] = "https://cdn/" + id
	}

	doc := mustDoc(t, `{"sections":[
		{"id":"a","type":"hero","settings":{"image_id":"ref://a"}},
		{"id":"b","type":"hero","settings":{"image_id":"ref://b"}},
		{"id":"c","type":"hero","settings":{"image_id":"ref://c"}}
	]}`)

	start := time.Now()
	got := testResolver(loc, 1).Resolve(context.Background(), doc)

	assert.Less(t, time.Since(start), 900*time.Millisecond, "resolutions should not run one after another")
	for i, id := range []string{"ref://a", "ref://b", "ref://c"} {
		assert.Equal(t, "https://cdn/"+id, settingString(t, got, i, Key("image")))
	}
}

func TestResolveWithoutPendingReturnsInput(t *testing.T) {
	loc := newFakeLocator()
	doc := mustDoc(t, `{"sections":[{"id":"a","type":"quote","settings":{"quote":"hi","image_id":"not-a-ref"}}]}`)

	got := testResolver(loc, 3).Resolve(context.Background(), doc)

	assert.Equal(t, 0, loc.totalCalls())
	require.Len(t, got.Sections, 1)
	assert.Same(t, doc.Sections[0].Settings, got.Sections[0].Settings)
}

func TestResolveWithNilLocatorIsNoop(t *testing.T) {
	doc := mustDoc(t, `{"sections":[{"id":"a","type":"hero","settings":{"image_id":"gid://shop/MediaImage/1"}}]}`)
	got := NewResolver(nil, ResolverOptions{}).Resolve(context.Background(), doc)
	assert.True(t, got.Equal(doc))
}

func TestPendingReportsPaths(t *testing.T) {
	doc := mustDoc(t, `{"sections":[
		{"id":"a","type":"hero","settings":{"image_id":"gid://x/1","image":""}},
		{"id":"b","type":"grid","settings":{"items":[{"image_id":"gid://x/2","image":"https://cdn/done.jpg"},{"image_id":"gid://x/3"}]}}
	]}`)
	pending := NewResolver(newFakeLocator(), ResolverOptions{}).Pending(doc)

	require.Len(t, pending, 2)
	assert.Equal(t, 0, pending[0].Section)
	assert.Equal(t, "image", pending[0].Path.String())
	assert.Equal(t, 1, pending[1].Section)
	assert.Equal(t, "items[1].image", pending[1].Path.String())
	assert.Equal(t, "gid://x/3", pending[1].Reference)
}
