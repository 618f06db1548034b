package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/constants"
)

// ErrRecognition marks a detection or extraction failure on a single frame.
// It is transient: callers treat it as "no match this frame".
var ErrRecognition = errors.New("recognition failed")

// Extractor detects faces in an image and returns one embedding per face.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) ([]Detection, error)
}

// MatcherOptions configures a Matcher. Zero values fall back to defaults,
// except Tolerance where zero is a legitimate (never matching) setting.
type MatcherOptions struct {
	Tolerance float64
	Metric    Metric
	Downscale float64
	Logger    *zap.Logger
}

// Matcher identifies the person in a frame against a ReferenceSet.
type Matcher struct {
	extractor Extractor
	refs      *ReferenceSet
	tolerance float64
	metric    Metric
	downscale float64
	log       *zap.Logger
}

// NewMatcher creates a matcher over an immutable reference set.
func NewMatcher(extractor Extractor, refs *ReferenceSet, opts MatcherOptions) *Matcher {
	if opts.Metric == "" {
		opts.Metric = MetricEuclidean
	}
	if opts.Downscale <= 0 || opts.Downscale > 1 {
		opts.Downscale = constants.DefaultDownscale
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Matcher{
		extractor: extractor,
		refs:      refs,
		tolerance: opts.Tolerance,
		metric:    opts.Metric,
		downscale: opts.Downscale,
		log:       opts.Logger,
	}
}

// Tolerance returns the configured match threshold.
func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Match downscales the frame, extracts face embeddings and returns the best
// identity. A frame without faces is a plain no-match. Extraction failures
// (including a panicking extractor) are returned wrapped in ErrRecognition and
// must be treated by the caller as a no-match as well.
func (m *Matcher) Match(ctx context.Context, frame image.Image) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("%w: extractor panic: %v", ErrRecognition, r)
		}
	}()

	if frame == nil || frame.Bounds().Empty() {
		return Result{}, fmt.Errorf("%w: empty frame", ErrRecognition)
	}

	small := Downscale(frame, m.downscale)
	detections, err := m.extractor.Extract(ctx, small)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRecognition, err)
	}

	res = Best(detections, m.refs, m.metric, m.tolerance)
	if res.Matched() {
		m.log.Debug("face matched",
			zap.String("identity", res.Identity),
			zap.Float64("distance", res.Distance),
			zap.Int("faces", res.Faces))
	}
	return res, nil
}

// Best applies the matching rule to a set of detections. Each identity is
// represented by its closest enrolled embedding; the globally closest identity
// for a face is accepted only when its distance is strictly below tolerance.
// Faces are considered in detection order and the first accepted face wins.
// Identities are scanned in sorted order and only a strictly smaller distance
// replaces the current best, so equal distances resolve deterministically.
func Best(detections []Detection, refs *ReferenceSet, metric Metric, tolerance float64) Result {
	res := Result{Faces: len(detections)}
	if len(detections) == 0 || refs == nil || refs.Len() == 0 {
		return res
	}

	closestMiss := math.Inf(1)
	for _, det := range detections {
		bestID := ""
		bestDist := math.Inf(1)
		for _, id := range refs.identities {
			d := minDistance(det.Embedding, refs.entries[id], metric)
			if d < bestDist {
				bestDist = d
				bestID = id
			}
		}

		if bestID != "" && bestDist < tolerance {
			res.Identity = bestID
			res.Distance = bestDist
			return res
		}
		if bestDist < closestMiss {
			closestMiss = bestDist
		}
	}

	res.Distance = closestMiss
	return res
}

// minDistance returns the distance from probe to the closest reference embedding.
func minDistance(probe Embedding, references []Embedding, metric Metric) float64 {
	best := math.Inf(1)
	for _, ref := range references {
		if d := metric.Distance(probe, ref); d < best {
			best = d
		}
	}
	return best
}
