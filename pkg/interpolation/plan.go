package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Order selects the 1D interpolation kernel.
type Order int

const (
	// Linear uses two taps
	Linear Order = 1
	// Cubic uses four taps of the Keys cubic convolution kernel (a = -0.5)
	Cubic Order = 3
)

func (o Order) String() string {
	switch o {
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder maps a configuration name to an Order.
func ParseOrder(name string) (Order, error) {
	switch name {
	case "linear":
		return Linear, nil
	case "cubic":
		return Cubic, nil
	default:
		return 0, fmt.Errorf("unknown interpolation order %q", name)
	}
}

const keysA = -0.5

// Taps holds the source indices and weights contributing to one output
// sample. Indices are already clamped, so edge samples replicate the
// border value.
type Taps struct {
	Index  [4]int
	Weight [4]float64
	N      int
}

// TapsAt computes the taps for continuous coordinate c over n samples.
func (o Order) TapsAt(c float64, n int) Taps {
	var t Taps
	i0 := int(math.Floor(c))
	f := c - float64(i0)

	switch o {
	case Linear:
		t.N = 2
		t.Index = [4]int{clampIndex(i0, n), clampIndex(i0+1, n)}
		t.Weight = [4]float64{1 - f, f}
	default:
		t.N = 4
		for k := 0; k < 4; k++ {
			t.Index[k] = clampIndex(i0-1+k, n)
			t.Weight[k] = keys(f - float64(k-1))
		}
	}
	return t
}

// keys is the cubic convolution kernel of Keys (1981).
func keys(x float64) float64 {
	x = math.Abs(x)
	switch {
	case x <= 1:
		return ((keysA+2)*x-(keysA+3))*x*x + 1
	case x < 2:
		return ((keysA*x-5*keysA)*x+8*keysA)*x - 4*keysA
	default:
		return 0
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}

// SamplingPlan resamples an (srcRows x srcCols) plane onto a
// (dstRows x dstCols) grid spanning the plane corner to corner. The taps
// depend only on the shapes and the order, so one plan serves every
// plane of a volume and every volume of the same shape.
type SamplingPlan struct {
	SrcRows, SrcCols int
	DstRows, DstCols int
	Order            Order

	rows []Taps
	cols []Taps
}

// NewSamplingPlan precomputes row and column taps.
func NewSamplingPlan(srcRows, srcCols, dstRows, dstCols int, order Order) *SamplingPlan {
	p := &SamplingPlan{
		SrcRows: srcRows, SrcCols: srcCols,
		DstRows: dstRows, DstCols: dstCols,
		Order: order,
		rows:  make([]Taps, dstRows),
		cols:  make([]Taps, dstCols),
	}
	for i, c := range Linspace(0, float64(srcRows-1), dstRows) {
		p.rows[i] = order.TapsAt(c, srcRows)
	}
	for i, c := range Linspace(0, float64(srcCols-1), dstCols) {
		p.cols[i] = order.TapsAt(c, srcCols)
	}
	return p
}

// ScratchSize is the length of the scratch buffer Accumulate needs.
func (p *SamplingPlan) ScratchSize() int {
	return p.SrcRows * p.DstCols
}

// Accumulate samples one plane and adds the result into dst, which has
// DstRows*DstCols elements. Source row r starts at data[offset+r*rowStride]
// and its columns are contiguous. scratch must hold ScratchSize elements.
func (p *SamplingPlan) Accumulate(dst, scratch, data []float64, offset, rowStride int) {
	// Columns first: every source row is resampled to DstCols
	for r := 0; r < p.SrcRows; r++ {
		row := data[offset+r*rowStride : offset+r*rowStride+p.SrcCols]
		out := scratch[r*p.DstCols : (r+1)*p.DstCols]
		for j, t := range p.cols {
			var v float64
			for k := 0; k < t.N; k++ {
				v += t.Weight[k] * row[t.Index[k]]
			}
			out[j] = v
		}
	}

	// Then rows
	for i, t := range p.rows {
		out := dst[i*p.DstCols : (i+1)*p.DstCols]
		for k := 0; k < t.N; k++ {
			w := t.Weight[k]
			if w == 0 {
				continue
			}
			floats.AddScaled(out, w, scratch[t.Index[k]*p.DstCols:(t.Index[k]+1)*p.DstCols])
		}
	}
}
