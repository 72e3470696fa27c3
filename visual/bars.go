package visual

import (
	"image/color"
	"math"
)

// Surface is a 2D drawing target measured in abstract units (pixels for
// images, half-cells for terminals).
type Surface interface {
	Bounds() (width, height float64)
	Clear()
	FillRect(x, y, w, h float64, c color.Color)
}

type BarOptions struct {
	Color      color.Color
	BarCount   int     // 0 uses as many bars as fit
	BarWidth   float64 // 0 derives the width from the surface
	BarSpacing float64
	Centered   bool
}

// Silence is the flat signal drawn when no analyser data is available.
var Silence = NewBuffer([]float64{0})

// DrawBars paints samples onto s as vertical bars. Samples are normalized
// with peak preservation and memoized through cache when cache is non-nil.
// It returns the number of bars drawn.
func DrawBars(s Surface, samples *Buffer, cache *Cache, opts BarOptions) int {
	width, height := s.Bounds()
	if width <= 0 || height <= 0 {
		return 0
	}
	if samples == nil {
		samples = Silence
	}

	maxBars := int(math.Floor((width - opts.BarSpacing) / (math.Max(opts.BarWidth, 1) + opts.BarSpacing)))
	if maxBars < 1 {
		return 0
	}
	count := maxBars
	if opts.BarCount > 0 && opts.BarCount < maxBars {
		count = opts.BarCount
	}
	barWidth := opts.BarWidth
	if barWidth == 0 {
		barWidth = (width-opts.BarSpacing)/float64(count) - opts.BarSpacing
	}

	var points []float64
	if cache != nil {
		points = cache.Normalize(samples, count, true)
	} else {
		points = Normalize(samples.Values(), count, true)
	}

	for i, p := range points {
		h := math.Max(1, math.Abs(p)*height)
		x := opts.BarSpacing + float64(i)*(barWidth+opts.BarSpacing)
		y := height - h
		if opts.Centered {
			y = (height - h) / 2
		}
		s.FillRect(x, y, barWidth, h, opts.Color)
	}
	return count
}
