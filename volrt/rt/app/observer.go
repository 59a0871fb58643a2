package app

import (
	"time"
)

// FrameObserver receives the time from a LoadVolume call to the first frame
// drawn with that volume. It is called at most once per installed volume,
// with the renderer locked, and must not call back into the Renderer.
type FrameObserver interface {
	FirstFrame(url string, elapsed time.Duration)
}

type FrameObserverFunc func(url string, elapsed time.Duration)

func (f FrameObserverFunc) FirstFrame(url string, elapsed time.Duration) { f(url, elapsed) }

type frameProbe struct {
	url   string
	start time.Time
}
