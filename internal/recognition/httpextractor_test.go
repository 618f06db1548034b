package recognition

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPExtractor_Extract(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file field: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %s", ct)
		}

		json.NewEncoder(w).Encode(faceResponse{
			FacesCount: 2,
			Faces: []faceDetection{
				{FaceIndex: 0, Dim: 2, Embedding: []float32{0.1, 0.2}, BBox: []float64{1, 2, 11, 12}, DetScore: 0.9},
				{FaceIndex: 1, Dim: 0, Embedding: nil},
			},
			Model: "buffalo_l",
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	ext := NewHTTPExtractor(server.URL+"/", time.Second)
	detections, err := ext.Extract(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(detections) != 1 {
		t.Fatalf("expected 1 usable detection, got %d", len(detections))
	}
	if detections[0].Box.Min.X != 1 || detections[0].Box.Max.Y != 12 {
		t.Errorf("unexpected box %v", detections[0].Box)
	}
	if len(detections[0].Embedding) != 2 {
		t.Errorf("expected 2-d embedding, got %d", len(detections[0].Embedding))
	}
}

func TestHTTPExtractor_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ext := NewHTTPExtractor(server.URL, time.Second)
	if _, err := ext.Extract(context.Background(), testFrame()); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
