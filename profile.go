package pagenorm

// Mean brightness of each column of a raster, averaged over all rows and channels
type ColumnProfile []float64

// Profile computes the column profile of r. The result has exactly r.Width entries.
func Profile(r *Raster) ColumnProfile {
	sums := make([]uint64, r.Width)
	for y := 0; y < r.Height; y++ {
		line := r.Pixels[y*r.Stride() : (y+1)*r.Stride()]
		i := 0
		for x := 0; x < r.Width; x++ {
			for c := 0; c < r.Channels; c++ {
				sums[x] += uint64(line[i])
				i++
			}
		}
	}
	divisor := float64(max(1, r.Height*r.Channels))
	profile := make(ColumnProfile, r.Width)
	for x, s := range sums {
		profile[x] = float64(s) / divisor
	}
	return profile
}

// Min returns the darkest column value, or 0 for an empty profile
func (p ColumnProfile) Min() float64 {
	if len(p) == 0 {
		return 0
	}
	m := p[0]
	for _, v := range p[1:] {
		m = min(m, v)
	}
	return m
}
