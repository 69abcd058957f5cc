package exposure

import "math"

// ditherRingSides are the concentric square rings the dither lattice
// walks, centered on the nominal pointing. A ring
// of side s contributes the 4(s-1) cells on its perimeter; summed across
// 3,5,7,9,11 that is 120 points total, the full (Δra, Δdec) sequence the
// dither function emits across iterations 1..120.
var ditherRingSides = [5]int{3, 5, 7, 9, 11}

// ringOffsets returns the perimeter cells of an s x s grid centered on
// the origin, in clockwise order starting from the top-left corner.
func ringOffsets(s int) [][2]int {
	half := (s - 1) / 2
	pts := make([][2]int, 0, 4*(s-1))

	for x := -half; x <= half; x++ {
		pts = append(pts, [2]int{x, half})
	}
	for y := half - 1; y >= -half; y-- {
		pts = append(pts, [2]int{half, y})
	}
	for x := half - 1; x >= -half; x-- {
		pts = append(pts, [2]int{x, -half})
	}
	for y := -half + 1; y <= half-1; y++ {
		pts = append(pts, [2]int{-half, y})
	}
	return pts
}

// ditherTotal is the total number of lattice points across all rings.
var ditherTotal = func() int {
	n := 0
	for _, s := range ditherRingSides {
		n += 4 * (s - 1)
	}
	return n
}()

// DitherOffset returns the (Δra, Δdec) lattice offset in degrees for
// 1-based dither iteration i, cycling through the concentric rings in
// order and wrapping after the full 120-point pattern repeats. decDeg
// compensates the RA offset by cos(Dec) so the lattice is a true angular
// square on the sky rather than a square in RA/Dec coordinates.
func DitherOffset(i int, stepDeg, decDeg float64) (dra, ddec float64) {
	if ditherTotal == 0 {
		return 0, 0
	}
	idx := (i - 1) % ditherTotal
	if idx < 0 {
		idx += ditherTotal
	}

	for _, s := range ditherRingSides {
		offs := ringOffsets(s)
		if idx < len(offs) {
			cosDec := math.Cos(decDeg * math.Pi / 180.0)
			if cosDec == 0 {
				cosDec = 1
			}
			dx, dy := offs[idx][0], offs[idx][1]
			return float64(dx) * stepDeg / cosDec, float64(dy) * stepDeg
		}
		idx -= len(offs)
	}
	return 0, 0
}

