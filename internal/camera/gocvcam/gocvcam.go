// Package gocvcam is the generic frame-grabber camera backend built on
// OpenCV's VideoCapture. It links OpenCV through cgo and is only imported by
// the command layer.
package gocvcam

import (
	"context"
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/likhithmdev/Final-Sic/internal/camera"
)

// Backend grabs frames through OpenCV's VideoCapture.
type Backend struct{}

// New returns the OpenCV frame-grabber backend.
func New() *Backend {
	return &Backend{}
}

func (*Backend) Kind() camera.BackendKind {
	return camera.BackendGeneric
}

// Open opens the device and requests the target resolution. The device may
// ignore the request; frames are returned at whatever size it delivers.
func (*Backend) Open(_ context.Context, settings camera.Settings) (camera.Handle, error) {
	vc, err := gocv.VideoCaptureDevice(settings.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", settings.DeviceID, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("video device %d did not open", settings.DeviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &handle{vc: vc, mat: gocv.NewMat()}, nil
}

type handle struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Read blocks until the driver delivers a frame. OpenCV offers no
// cancellation, so ctx is not observed.
func (h *handle) Read(_ context.Context) (*image.RGBA, error) {
	if ok := h.vc.Read(&h.mat); !ok || h.mat.Empty() {
		return nil, errors.New("device returned no frame")
	}

	img, err := h.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return camera.ToRGBA(img), nil
}

func (h *handle) Close() error {
	return errors.Join(h.mat.Close(), h.vc.Close())
}
