package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/names"
)

var (
	// ErrEnrollment marks a single enrollment image that could not be used.
	ErrEnrollment = errors.New("enrollment image failed")
	// ErrNoEnrollment means no configured identity has a usable embedding.
	ErrNoEnrollment = errors.New("no identity has enrollment data")
)

// enrollExtensions are the image types accepted in an identity directory.
var enrollExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// EnrollOptions controls LoadReferenceSet.
type EnrollOptions struct {
	Logger *zap.Logger
	// Progress is called after every processed image with the number of
	// processed images and the total.
	Progress func(done, total int)
	// CreateMissing creates the faces directory with one empty sub-directory
	// per identity when it does not exist yet.
	CreateMissing bool
}

// IdentityReport summarizes enrollment of one identity.
type IdentityReport struct {
	Identity   string
	Images     int
	Embeddings int
	Skipped    int
}

// EnrollReport summarizes a whole enrollment run in identity order.
type EnrollReport struct {
	Identities []IdentityReport
}

// Total returns the total number of embeddings across all identities.
func (r EnrollReport) Total() int {
	n := 0
	for _, id := range r.Identities {
		n += id.Embeddings
	}
	return n
}

type enrollJob struct {
	identity string
	path     string
}

// LoadReferenceSet builds the reference set from dir, which holds one
// sub-directory per identity. Directory names are normalized and matched
// against identities; unknown directories are ignored. Unreadable images and
// images without a face are skipped with a warning. An identity with no
// embeddings is left out of the set. ErrNoEnrollment is returned when the set
// would be empty.
func LoadReferenceSet(ctx context.Context, dir string, identities []string, extractor Extractor, opts EnrollOptions) (*ReferenceSet, EnrollReport, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	known := make(map[string]bool, len(identities))
	for _, id := range identities {
		known[names.NormalizeIdentity(id)] = true
	}

	report := EnrollReport{}
	for _, id := range sortedKeys(known) {
		report.Identities = append(report.Identities, IdentityReport{Identity: id})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && opts.CreateMissing {
			if err := createFacesDir(dir, sortedKeys(known)); err != nil {
				return nil, report, err
			}
			log.Warn("faces directory created, add reference images and restart", zap.String("dir", dir))
			return nil, report, fmt.Errorf("%w: %s was empty", ErrNoEnrollment, dir)
		}
		return nil, report, fmt.Errorf("read faces directory: %w", err)
	}

	var jobs []enrollJob
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := names.NormalizeIdentity(entry.Name())
		if !known[id] {
			log.Warn("ignoring faces directory for unknown identity", zap.String("dir", entry.Name()))
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn("can not read identity directory", zap.String("identity", id), zap.Error(err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || !enrollExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			jobs = append(jobs, enrollJob{identity: id, path: filepath.Join(dir, entry.Name(), f.Name())})
		}
	}

	embeddings := make(map[string][]Embedding)
	stats := make(map[string]*IdentityReport, len(report.Identities))
	for i := range report.Identities {
		stats[report.Identities[i].Identity] = &report.Identities[i]
	}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		st := stats[job.identity]
		st.Images++
		emb, err := enrollImage(ctx, extractor, job.path)
		if err != nil {
			st.Skipped++
			log.Warn("skipping enrollment image", zap.String("identity", job.identity),
				zap.String("path", job.path), zap.Error(err))
		} else {
			embeddings[job.identity] = append(embeddings[job.identity], emb)
			st.Embeddings++
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(jobs))
		}
	}

	for _, st := range report.Identities {
		if st.Embeddings == 0 {
			log.Warn("identity has no usable reference images and can not be matched",
				zap.String("identity", st.Identity))
		}
	}

	refs := NewReferenceSet(embeddings)
	if refs.Len() == 0 {
		return nil, report, fmt.Errorf("%w: %s", ErrNoEnrollment, dir)
	}
	return refs, report, nil
}

// enrollImage decodes one reference image and returns the embedding of its
// first face.
func enrollImage(ctx context.Context, extractor Extractor, path string) (Embedding, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the configured faces directory
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrollment, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrollment, err)
	}
	detections, err := extractor.Extract(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnrollment, err)
	}
	if len(detections) == 0 || len(detections[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no face found", ErrEnrollment)
	}
	return detections[0].Embedding, nil
}

func createFacesDir(dir string, identities []string) error {
	for _, id := range identities {
		if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
			return fmt.Errorf("create faces directory: %w", err)
		}
	}
	return os.MkdirAll(dir, 0o755)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
