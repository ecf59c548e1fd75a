package codec

// splatTexWidth and splatTexHeight are the fixed dimensions of one packed-
// splat texture layer; splatTexLayerSize is the splat capacity of a single
// layer. Values match the wire-format's 11-bit width/height/depth fields.
const (
	splatTexWidth     = 1 << 11
	splatTexHeight    = 1 << 11
	splatTexMinHeight = 1
	splatTexLayerSize = splatTexWidth * splatTexHeight
)

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func divCeil(a, b int) int {
	return (a + b - 1) / b
}

// SplatTexSize returns the packed-splat texture dimensions a consumer would
// need to hold numSplats splats: width, height, depth (layer count), and
// the total splat capacity those dimensions provide (spec §8 boundary
// behavior — numSplats=0 still returns a non-zero, one-layer capacity, so a
// caller can always allocate storage before the first insert).
func SplatTexSize(numSplats int) (width, height, depth, maxSplats int) {
	width = splatTexWidth
	height = clampInt(divCeil(numSplats, splatTexWidth), splatTexMinHeight, splatTexHeight)
	depth = divCeil(numSplats, splatTexLayerSize)
	if depth < 1 {
		depth = 1
	}
	maxSplats = width * height * depth
	return width, height, depth, maxSplats
}
