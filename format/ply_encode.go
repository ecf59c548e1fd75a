package format

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

// EncodePly writes src as a binary-little-endian PLY point cloud (spec
// §4.5 "PLY", encoder half). Opacity is clamped to [1e-12, 1-1e-12] before
// the logit transform, as the decoder's inverse logistic expects.
func EncodePly(src splat.Getter) ([]byte, error) {
	n := src.NumSplats()
	degree := src.MaxSHDegree()
	restCount := shOffset(degree) * 3

	var header strings.Builder
	header.WriteString("ply\n")
	header.WriteString("format binary_little_endian 1.0\n")
	fmt.Fprintf(&header, "element vertex %d\n", n)
	for _, name := range []string{"x", "y", "z"} {
		fmt.Fprintf(&header, "property float %s\n", name)
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&header, "property float scale_%d\n", i)
	}
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&header, "property float rot_%d\n", i)
	}
	header.WriteString("property float opacity\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&header, "property float f_dc_%d\n", i)
	}
	for i := 0; i < restCount; i++ {
		fmt.Fprintf(&header, "property float f_rest_%d\n", i)
	}
	header.WriteString("end_header\n")

	stride := 3*4 + 3*4 + 4*4 + 4 + 3*4 + restCount*4
	out := make([]byte, 0, len(header.String())+n*stride)
	out = append(out, header.String()...)

	centers, err := src.GetCenter(0, n)
	if err != nil {
		return nil, err
	}
	opacities, err := src.GetOpacity(0, n)
	if err != nil {
		return nil, err
	}
	rgbs, err := src.GetRGB(0, n)
	if err != nil {
		return nil, err
	}
	scales, err := src.GetScale(0, n)
	if err != nil {
		return nil, err
	}
	quats, err := src.GetQuat(0, n)
	if err != nil {
		return nil, err
	}
	var sh1 []splat.SH1Coeffs
	var sh2 []splat.SH2Coeffs
	var sh3 []splat.SH3Coeffs
	if degree >= 1 {
		if sh1, err = src.GetSH1(0, n); err != nil {
			return nil, err
		}
	}
	if degree >= 2 {
		if sh2, err = src.GetSH2(0, n); err != nil {
			return nil, err
		}
	}
	if degree >= 3 {
		if sh3, err = src.GetSH3(0, n); err != nil {
			return nil, err
		}
	}

	var f4 [4]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint32(f4[:], math.Float32bits(float32(v)))
		out = append(out, f4[:]...)
	}

	for i := 0; i < n; i++ {
		c := centers[i]
		putFloat(c.X)
		putFloat(c.Y)
		putFloat(c.Z)

		s := scales[i]
		putFloat(safeLog(s.X))
		putFloat(safeLog(s.Y))
		putFloat(safeLog(s.Z))

		q := quats[i]
		putFloat(q.W)
		putFloat(q.X)
		putFloat(q.Y)
		putFloat(q.Z)

		op := spark.Clamp(opacities[i], 1e-12, 1-1e-12)
		putFloat(math.Log(op / (1 - op)))

		c3 := rgbs[i]
		putFloat((c3.X - 0.5) / splatSHC0)
		putFloat((c3.Y - 0.5) / splatSHC0)
		putFloat((c3.Z - 0.5) / splatSHC0)

		if restCount > 0 {
			frest := make([]float64, restCount)
			perChannelStride := restCount / 3
			if degree >= 1 {
				scatterFRestBand(frest, sh1[i][:], 1, perChannelStride)
			}
			if degree >= 2 {
				scatterFRestBand(frest, sh2[i][:], 2, perChannelStride)
			}
			if degree >= 3 {
				scatterFRestBand(frest, sh3[i][:], 3, perChannelStride)
			}
			for _, v := range frest {
				putFloat(v)
			}
		}
	}
	return out, nil
}

// scatterFRestBand writes one SH band's channel-major coefficients
// (channel*count+k) into their absolute stride-by-channel slots in frest:
// f_rest[ch*perChannelStride + shOffset(degree-1) + k] (spec §4.5).
func scatterFRestBand(frest, coeffs []float64, degree, perChannelStride int) {
	base := shOffset(degree - 1)
	count := shOffset(degree) - shOffset(degree-1)
	for ch := 0; ch < 3; ch++ {
		for k := 0; k < count; k++ {
			frest[ch*perChannelStride+base+k] = coeffs[ch*count+k]
		}
	}
}

func safeLog(s float64) float64 {
	if s <= 0 {
		return math.Inf(-1)
	}
	return math.Log(s)
}
