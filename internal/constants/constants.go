// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Remote session service constants
const (
	// DefaultAPIBase is the check-in service base URL when SMART_BIN_API is unset
	DefaultAPIBase = "http://localhost:3000/api"

	// DefaultHTTPTimeout bounds every login, check-in and check-out call
	DefaultHTTPTimeout = 5 * time.Second
)

// Session constants
const (
	// DefaultCheckInTimeout is how long a check-in stays active before automatic check-out
	DefaultCheckInTimeout = 30 * time.Second
)

// Face matching constants
const (
	// DefaultTolerance is the maximum Euclidean distance accepted as a match
	// for dlib 128-d descriptors. Lower values = stricter matching
	DefaultTolerance = 0.6

	// DefaultCosineTolerance is the maximum cosine distance accepted as a match
	// for the embedding server's 512-d face vectors
	DefaultCosineTolerance = 0.5

	// DefaultDownscale is the linear scale applied to frames before face detection
	DefaultDownscale = 0.25

	// DefaultFacesDir holds one sub-directory of reference images per identity
	DefaultFacesDir = "faces"

	// DefaultIdentitiesFile maps identities to their credentials
	DefaultIdentitiesFile = "identities.yaml"

	// DefaultEmbeddingURL is the face embedding server used by the HTTP extractor
	DefaultEmbeddingURL = "http://localhost:8000"

	// JPEGQuality is used whenever a frame is encoded for an extractor
	JPEGQuality = 90
)

// Camera constants
const (
	// DefaultCameraWidth and DefaultCameraHeight are the requested capture resolution
	DefaultCameraWidth  = 640
	DefaultCameraHeight = 480

	// DefaultCameraFPS is the frame rate requested from the streaming backend
	DefaultCameraFPS = 15

	// DefaultStreamCommand is the sensor streaming tool (libcamera stack)
	DefaultStreamCommand = "rpicam-vid"

	// DefaultProbeTimeout bounds how long a backend may take to deliver its first frame
	DefaultProbeTimeout = 5 * time.Second
)

// Control loop constants
const (
	// DefaultFrameStride runs recognition on every Nth captured frame
	DefaultFrameStride = 3

	// FrameRetryDelay is the pause after a failed frame capture
	FrameRetryDelay = 100 * time.Millisecond

	// ShutdownTimeout bounds the best-effort check-out performed on exit
	ShutdownTimeout = 10 * time.Second
)
