package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

// fakeExtractor returns fixed detections and records the size of the image it saw.
type fakeExtractor struct {
	detections []Detection
	err        error
	panicValue any
	lastBounds image.Rectangle
	calls      int
}

func (f *fakeExtractor) Extract(_ context.Context, img image.Image) ([]Detection, error) {
	f.calls++
	f.lastBounds = img.Bounds()
	if f.panicValue != nil {
		panic(f.panicValue)
	}
	return f.detections, f.err
}

func det(values ...float32) Detection {
	return Detection{Embedding: Embedding(values)}
}

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 120, B: 140, A: 255})
		}
	}
	return img
}

func testRefs() *ReferenceSet {
	return NewReferenceSet(map[string][]Embedding{
		"alice": {{0, 0}, {1, 1}},
		"bob":   {{5, 5}},
	})
}

func TestBest_NoFaces(t *testing.T) {
	res := Best(nil, testRefs(), MetricEuclidean, 0.6)
	if res.Matched() {
		t.Errorf("expected no match for zero faces, got %q", res.Identity)
	}
	if res.Faces != 0 {
		t.Errorf("expected 0 faces, got %d", res.Faces)
	}
}

func TestBest_UsesMinimumPerIdentity(t *testing.T) {
	// The probe is far from alice's first sample but close to her second.
	res := Best([]Detection{det(1.1, 1.0)}, testRefs(), MetricEuclidean, 0.6)
	if res.Identity != "alice" {
		t.Fatalf("expected alice, got %q", res.Identity)
	}
	if res.Distance > 0.11 {
		t.Errorf("expected distance to the closest sample (~0.1), got %v", res.Distance)
	}
}

func TestBest_GloballyClosestIdentityWins(t *testing.T) {
	refs := NewReferenceSet(map[string][]Embedding{
		"alice": {{0, 0}},
		"bob":   {{0.3, 0}},
	})
	res := Best([]Detection{det(0.25, 0)}, refs, MetricEuclidean, 0.6)
	if res.Identity != "bob" {
		t.Errorf("expected bob (closer), got %q", res.Identity)
	}
}

func TestBest_ThresholdIsStrict(t *testing.T) {
	refs := NewReferenceSet(map[string][]Embedding{"alice": {{0, 0}}})

	res := Best([]Detection{det(0.5, 0)}, refs, MetricEuclidean, 0.5)
	if res.Matched() {
		t.Errorf("expected distance equal to tolerance to be rejected, got %q", res.Identity)
	}
	if res.Distance != 0.5 {
		t.Errorf("expected closest miss 0.5, got %v", res.Distance)
	}

	res = Best([]Detection{det(0.49, 0)}, refs, MetricEuclidean, 0.5)
	if res.Identity != "alice" {
		t.Errorf("expected alice just below tolerance, got %q", res.Identity)
	}
}

func TestBest_ZeroToleranceNeverMatches(t *testing.T) {
	res := Best([]Detection{det(0.001, 0)}, testRefs(), MetricEuclidean, 0)
	if res.Matched() {
		t.Errorf("expected no match with zero tolerance, got %q", res.Identity)
	}
}

func TestBest_FirstAcceptedFaceWins(t *testing.T) {
	detections := []Detection{
		det(9, -9),  // nobody
		det(5, 5.1), // bob
		det(0, 0),   // alice, exact
	}
	res := Best(detections, testRefs(), MetricEuclidean, 0.6)
	if res.Identity != "bob" {
		t.Errorf("expected first accepted face (bob), got %q", res.Identity)
	}
	if res.Faces != 3 {
		t.Errorf("expected 3 faces, got %d", res.Faces)
	}
}

func TestBest_TieResolvesToFirstIdentity(t *testing.T) {
	refs := NewReferenceSet(map[string][]Embedding{
		"zoe":   {{1, 0}},
		"alice": {{-1, 0}},
	})
	for range 10 {
		res := Best([]Detection{det(0, 0)}, refs, MetricEuclidean, 1.5)
		if res.Identity != "alice" {
			t.Fatalf("expected deterministic tie-break to alice, got %q", res.Identity)
		}
	}
}

func TestBest_EmptyIdentityNeverMatches(t *testing.T) {
	refs := NewReferenceSet(map[string][]Embedding{
		"ghost": {{}},
		"alice": {{3, 3}},
	})
	if refs.Count("ghost") != 0 || refs.Len() != 1 {
		t.Fatalf("expected ghost to be excluded, identities: %v", refs.Identities())
	}
	res := Best([]Detection{det()}, refs, MetricEuclidean, 10)
	if res.Matched() {
		t.Errorf("expected no match for empty probe, got %q", res.Identity)
	}
}

func TestBest_CosineMetric(t *testing.T) {
	refs := NewReferenceSet(map[string][]Embedding{
		"alice": {{1, 0}},
		"bob":   {{0, 1}},
	})
	res := Best([]Detection{det(10, 1)}, refs, MetricCosine, 0.1)
	if res.Identity != "alice" {
		t.Errorf("expected alice by direction, got %q", res.Identity)
	}
}

func TestNewReferenceSet_CopiesInput(t *testing.T) {
	src := map[string][]Embedding{"alice": {{1, 2}}}
	refs := NewReferenceSet(src)
	src["alice"][0][0] = 99
	src["mallory"] = []Embedding{{1, 2}}

	if refs.Len() != 1 {
		t.Errorf("expected set to be unaffected by later changes, got %v", refs.Identities())
	}
	res := Best([]Detection{det(1, 2)}, refs, MetricEuclidean, 0.1)
	if res.Identity != "alice" {
		t.Errorf("expected alice with original embedding, got %q (%v)", res.Identity, res.Distance)
	}
}

func TestMatcher_Match(t *testing.T) {
	ext := &fakeExtractor{detections: []Detection{det(0.1, 0.1)}}
	m := NewMatcher(ext, testRefs(), MatcherOptions{Tolerance: 0.6, Downscale: 0.25})

	res, err := m.Match(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Identity != "alice" {
		t.Errorf("expected alice, got %q", res.Identity)
	}
	if ext.lastBounds.Dx() != 16 || ext.lastBounds.Dy() != 12 {
		t.Errorf("expected frame downscaled to 16x12, got %v", ext.lastBounds)
	}
}

func TestMatcher_NoFacesIsNotAnError(t *testing.T) {
	m := NewMatcher(&fakeExtractor{}, testRefs(), MatcherOptions{Tolerance: 0.6})

	res, err := m.Match(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Matched() {
		t.Errorf("expected no match, got %q", res.Identity)
	}
}

func TestMatcher_ExtractorErrorIsRecognitionError(t *testing.T) {
	m := NewMatcher(&fakeExtractor{err: errors.New("model crashed")}, testRefs(), MatcherOptions{Tolerance: 0.6})

	res, err := m.Match(context.Background(), testFrame())
	if !errors.Is(err, ErrRecognition) {
		t.Errorf("expected ErrRecognition, got %v", err)
	}
	if res.Matched() {
		t.Error("expected no match on error")
	}
}

func TestMatcher_ExtractorPanicIsRecovered(t *testing.T) {
	m := NewMatcher(&fakeExtractor{panicValue: "boom"}, testRefs(), MatcherOptions{Tolerance: 0.6})

	res, err := m.Match(context.Background(), testFrame())
	if !errors.Is(err, ErrRecognition) {
		t.Errorf("expected ErrRecognition after panic, got %v", err)
	}
	if res.Matched() {
		t.Error("expected no match after panic")
	}
}

func TestMatcher_EmptyFrame(t *testing.T) {
	ext := &fakeExtractor{}
	m := NewMatcher(ext, testRefs(), MatcherOptions{Tolerance: 0.6})

	if _, err := m.Match(context.Background(), image.NewRGBA(image.Rectangle{})); !errors.Is(err, ErrRecognition) {
		t.Errorf("expected ErrRecognition for empty frame, got %v", err)
	}
	if ext.calls != 0 {
		t.Error("expected extractor not to be called for an empty frame")
	}
}

func TestDownscale(t *testing.T) {
	img := testFrame()

	if got := Downscale(img, 1); got != image.Image(img) {
		t.Error("expected scale 1 to return the original image")
	}

	small := Downscale(img, 0.5)
	if small.Bounds().Dx() != 32 || small.Bounds().Dy() != 24 {
		t.Errorf("expected 32x24, got %v", small.Bounds())
	}

	tiny := Downscale(img, 0.001)
	if tiny.Bounds().Dx() != 1 || tiny.Bounds().Dy() != 1 {
		t.Errorf("expected at least 1x1, got %v", tiny.Bounds())
	}
}
