package volatility

import "math"

// Rolling keeps the sample standard deviation of the last Window values.
// Undefined values occupy a slot but never enter the moments, and the
// deviation is only reported while every slot holds a defined value.
// Each Push is O(1).
type Rolling struct {
	window int
	buf    []float64
	valid  []bool
	pos    int
	filled int

	n    int
	mean float64
	m2   float64
}

// NewRolling creates an accumulator. window must be at least 2.
func NewRolling(window int) *Rolling {
	if window < 2 {
		window = 2
	}
	return &Rolling{
		window: window,
		buf:    make([]float64, window),
		valid:  make([]bool, window),
	}
}

// Window returns the window length.
func (r *Rolling) Window() int {
	return r.window
}

// Push adds v (nil for undefined) and returns the current stdev, or nil when
// the window is not yet full of defined values.
func (r *Rolling) Push(v *float64) *float64 {
	if r.filled == r.window && r.valid[r.pos] {
		r.remove(r.buf[r.pos])
	}

	if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
		r.buf[r.pos] = *v
		r.valid[r.pos] = true
		r.add(*v)
	} else {
		r.buf[r.pos] = 0
		r.valid[r.pos] = false
	}

	r.pos = (r.pos + 1) % r.window
	if r.filled < r.window {
		r.filled++
	}

	return r.StdDev()
}

// StdDev returns the sample standard deviation (ddof=1) of the window.
func (r *Rolling) StdDev() *float64 {
	if r.filled < r.window || r.n < r.window {
		return nil
	}
	variance := r.m2 / float64(r.n-1)
	if variance < 0 {
		variance = 0
	}
	sd := math.Sqrt(variance)
	return &sd
}

// Reset clears all state.
func (r *Rolling) Reset() {
	for i := range r.buf {
		r.buf[i] = 0
		r.valid[i] = false
	}
	r.pos, r.filled, r.n = 0, 0, 0
	r.mean, r.m2 = 0, 0
}

func (r *Rolling) add(x float64) {
	r.n++
	d := x - r.mean
	r.mean += d / float64(r.n)
	r.m2 += d * (x - r.mean)
}

func (r *Rolling) remove(x float64) {
	if r.n <= 1 {
		r.n, r.mean, r.m2 = 0, 0, 0
		return
	}
	r.n--
	d := x - r.mean
	r.mean -= d / float64(r.n)
	r.m2 -= d * (x - r.mean)
	if r.m2 < 0 {
		r.m2 = 0
	}
}
