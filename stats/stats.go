// Package stats provides the scalar statistics the correction stages consume:
// mean, median, standard deviation, and iteratively sigma-clipped mean.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of data, NaN for empty input.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, v := range data {
		s += v
	}
	return s / float64(len(data))
}

// Median returns the median of data, NaN for empty input.  data is not
// modified.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	tmp := make([]float64, len(data))
	copy(tmp, data)
	sort.Float64s(tmp)
	n := len(tmp)
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2
}

// StdDev returns the population standard deviation of data.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	m := Mean(data)
	s := 0.0
	for _, v := range data {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(data)))
}

// Percentile returns the p-th percentile of data (0 <= p <= 100) by linear
// interpolation between order statistics.  data is not modified.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	tmp := make([]float64, len(data))
	copy(tmp, data)
	sort.Float64s(tmp)
	if p <= 0 {
		return tmp[0]
	}
	if p >= 100 {
		return tmp[len(tmp)-1]
	}
	pos := p / 100 * float64(len(tmp)-1)
	i := int(pos)
	frac := pos - float64(i)
	if i+1 >= len(tmp) {
		return tmp[i]
	}
	return tmp[i] + frac*(tmp[i+1]-tmp[i])
}

// ClippedMean returns the mean of data after iteratively rejecting samples
// more than nsigma standard deviations from the running mean.  iters bounds
// the number of rejection passes; the loop also stops when a pass rejects
// nothing.
func ClippedMean(data []float64, nsigma float64, iters int) float64 {
	m, _ := ClippedMeanStdDev(data, nsigma, iters)
	return m
}

// ClippedMeanStdDev returns both the mean and the standard deviation of the
// surviving samples after iterative sigma rejection.
func ClippedMeanStdDev(data []float64, nsigma float64, iters int) (mean, stddev float64) {
	if len(data) == 0 {
		return math.NaN(), math.NaN()
	}
	kept := make([]float64, len(data))
	copy(kept, data)
	for i := 0; i < iters; i++ {
		m := Mean(kept)
		sd := StdDev(kept)
		if sd == 0 {
			break
		}
		lo, hi := m-nsigma*sd, m+nsigma*sd
		next := kept[:0]
		for _, v := range kept {
			if v >= lo && v <= hi {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) || len(next) == 0 {
			break
		}
		kept = next
	}
	return Mean(kept), StdDev(kept)
}
