package visual

import "math"

// Normalize resamples data to exactly targetLength values.
//
// When targetLength <= len(data) the samples are grouped into buckets by
// proportional index mapping and each bucket collapses to either its peak
// absolute value (preservePeaks) or its mean absolute value. When
// targetLength > len(data) the output is linearly interpolated.
//
// An empty data slice is treated as a single zero sample. A targetLength
// below 1 yields an empty slice.
func Normalize(data []float64, targetLength int, preservePeaks bool) []float64 {
	if targetLength < 1 {
		return []float64{}
	}
	if len(data) == 0 {
		data = flat
	}
	if targetLength <= len(data) {
		return downsample(data, targetLength, preservePeaks)
	}
	return upsample(data, targetLength)
}

var flat = []float64{0}

func downsample(data []float64, m int, preservePeaks bool) []float64 {
	n := len(data)
	result := make([]float64, m)
	count := make([]int, m)
	for i, v := range data {
		idx := i * m / n
		a := math.Abs(v)
		if preservePeaks {
			if a > result[idx] {
				result[idx] = a
			}
		} else {
			result[idx] += a
		}
		count[idx]++
	}
	if !preservePeaks {
		for i := range result {
			// every bucket receives at least one sample since m <= n
			result[i] /= float64(count[i])
		}
	}
	return result
}

func upsample(data []float64, m int) []float64 {
	n := len(data)
	result := make([]float64, m)
	if m == 1 {
		result[0] = data[n-1]
		return result
	}
	for i := range result {
		idx := float64(i) * float64(n-1) / float64(m-1)
		low := int(math.Floor(idx))
		high := int(math.Ceil(idx))
		if high >= n {
			result[i] = data[n-1]
			continue
		}
		t := idx - float64(low)
		result[i] = data[low]*(1-t) + data[high]*t
	}
	return result
}
