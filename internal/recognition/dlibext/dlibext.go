// Package dlibext extracts face descriptors in-process with dlib through
// go-face. It links dlib through cgo and is only imported by the command layer.
package dlibext

import (
	"context"
	"fmt"
	"image"

	face "github.com/Kagami/go-face"

	"github.com/likhithmdev/Final-Sic/internal/recognition"
)

// Extractor runs dlib's face detector and 128-d descriptor network.
// It is not safe for concurrent use.
type Extractor struct {
	rec *face.Recognizer
}

// New loads the dlib models (shape predictor, recognition ResNet and CNN
// detector) from modelsDir.
func New(modelsDir string) (*Extractor, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("can not initialize face recognizer: %w", err)
	}
	return &Extractor{rec: rec}, nil
}

// Extract detects faces and returns their descriptors.
func (e *Extractor) Extract(_ context.Context, img image.Image) ([]recognition.Detection, error) {
	data, err := recognition.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	faces, err := e.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	detections := make([]recognition.Detection, 0, len(faces))
	for _, f := range faces {
		desc := f.Descriptor
		detections = append(detections, recognition.Detection{
			Box:       f.Rectangle,
			Embedding: append(recognition.Embedding(nil), desc[:]...),
		})
	}
	return detections, nil
}

// Close frees the native recognizer.
func (e *Extractor) Close() error {
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	return nil
}
