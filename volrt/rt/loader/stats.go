package loader

import (
	"math"
	"strconv"
	"time"
)

// ResourceTiming describes one completed fetch.
type ResourceTiming struct {
	Source   string
	Size     int64
	Duration time.Duration
}

// ResourceObserver receives a ResourceTiming for every successful fetch.
type ResourceObserver interface {
	ObserveResource(ResourceTiming)
}

// ResourceObserverFunc adapts a function to ResourceObserver.
type ResourceObserverFunc func(ResourceTiming)

func (f ResourceObserverFunc) ObserveResource(t ResourceTiming) { f(t) }

var sizeUnits = [...]string{"B", "KB", "MB"}

// FormatSize renders a byte count as B, KB or MB with at most two decimals,
// e.g. 1536 -> "1.5 KB". Anything past MB stays in MB.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	value := float64(bytes)
	exp := 0
	for value >= 1024 && exp < len(sizeUnits)-1 {
		value /= 1024
		exp++
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[exp]
}
