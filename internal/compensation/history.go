package compensation

// History is a fixed-capacity ring of the most recent CPU temperatures.
// Once created it always holds exactly Len() samples.
type History struct {
	samples []float64
	head    int // index of the oldest sample
}

// NewHistory returns a history of size n with every slot set to seed.
func NewHistory(n int, seed float64) *History {
	if n < 1 {
		n = 1
	}

	samples := make([]float64, n)
	for i := range samples {
		samples[i] = seed
	}

	return &History{samples: samples}
}

// Slide drops the oldest sample and appends v.
func (h *History) Slide(v float64) {
	h.samples[h.head] = v
	h.head = (h.head + 1) % len(h.samples)
}

// Mean returns the arithmetic mean of the stored samples.
func (h *History) Mean() float64 {
	sum := 0.0
	for _, v := range h.samples {
		sum += v
	}

	return sum / float64(len(h.samples))
}

// Values returns a copy of the samples ordered oldest to newest.
func (h *History) Values() []float64 {
	out := make([]float64, 0, len(h.samples))
	out = append(out, h.samples[h.head:]...)
	out = append(out, h.samples[:h.head]...)

	return out
}

func (h *History) Len() int {
	return len(h.samples)
}
