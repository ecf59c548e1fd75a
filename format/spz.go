package format

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/codec"
	"github.com/sparkjsdev/spark/splat"
)

const (
	spzMagic      = 0x5053474e // "NGSP"
	spzHeaderSize = 16
	spzMaxChunk   = 16384
	spzWriteVersion = uint32(2)
)

// SpzDecoder decodes a gzip-wrapped SPZ stream into a splat.Receiver (spec
// §4.5 "SPZ"). The gzip wrapper is peeled with the standard library, which
// already handles the FEXTRA/FNAME/FCOMMENT/FHCRC header variants spec §8
// exercises.
type SpzDecoder struct {
	buf  bytes.Buffer
	dst  splat.Receiver
	done bool
}

// NewSpzDecoder returns a decoder that emits into dst.
func NewSpzDecoder(dst splat.Receiver) *SpzDecoder {
	return &SpzDecoder{dst: dst}
}

// Push buffers bytes of the gzip stream.
func (d *SpzDecoder) Push(data []byte) error {
	d.buf.Write(data)
	return nil
}

// Finish gunzips and parses the fully-buffered stream and emits it into dst.
func (d *SpzDecoder) Finish() error {
	if d.done {
		return nil
	}
	d.done = true

	gr, err := gzip.NewReader(bytes.NewReader(d.buf.Bytes()))
	if err != nil {
		return errMalformedf("spz: invalid gzip header: %v", err)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		return errMalformedf("spz: truncated gzip stream: %v", err)
	}
	if err := gr.Close(); err != nil {
		return errMalformedf("spz: gzip trailer check failed: %v", err)
	}

	if len(raw) < spzHeaderSize {
		return errMalformedf("spz: payload shorter than %d-byte header", spzHeaderSize)
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != spzMagic {
		return errMalformedf("spz: bad magic 0x%08x", magic)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	if version < 1 || version > 3 {
		return errUnsupportedf("spz: unsupported version %d", version)
	}
	numSplats := int(binary.LittleEndian.Uint32(raw[8:12]))
	if numSplats < 0 {
		return errMalformedf("spz: negative num_splats")
	}
	shDegree := int(raw[12])
	if shDegree > 3 {
		return errMalformedf("spz: sh degree %d > 3", shDegree)
	}
	fracBits := raw[13]
	flags := raw[14]
	hasLod := flags&0x80 != 0
	flagAntialias := flags&0x01 != 0

	body := raw[spzHeaderSize:]
	pos := 0
	take := func(n int) ([]byte, error) {
		if pos+n > len(body) {
			return nil, errMalformedf("spz: truncated section, need %d more bytes", n)
		}
		b := body[pos : pos+n]
		pos += n
		return b, nil
	}

	if err := d.dst.Init(numSplats, shDegree, hasLod); err != nil {
		return err
	}
	if a, ok := d.dst.(interface{ SetFlagAntialias(bool) }); ok {
		a.SetFlagAntialias(flagAntialias)
	}

	centerSize := codec.CenterF16Size
	if version >= 2 {
		centerSize = codec.CenterI24Size
	}
	for base := 0; base < numSplats; base += spzMaxChunk {
		n := minInt(spzMaxChunk, numSplats-base)
		spark.Logger().Debug("spz: decoding chunk", "field", "center", "base", base, "n", n)
		centers := make([]spark.Vec3, n)
		for i := 0; i < n; i++ {
			rec, err := take(centerSize)
			if err != nil {
				return err
			}
			var c spark.Vec3
			if version == 1 {
				c, err = codec.DecodeCenterF16(rec)
			} else {
				c, err = codec.DecodeCenterI24(rec, fracBits)
			}
			if err != nil {
				return err
			}
			centers[i] = c
		}
		if err := d.dst.SetCenter(base, centers); err != nil {
			return err
		}
	}

	for base := 0; base < numSplats; base += spzMaxChunk {
		n := minInt(spzMaxChunk, numSplats-base)
		opacities := make([]float64, n)
		for i := 0; i < n; i++ {
			rec, err := take(1)
			if err != nil {
				return err
			}
			opacities[i] = codec.DecodeOpacitySPZ(rec[0])
		}
		if err := d.dst.SetOpacity(base, opacities); err != nil {
			return err
		}
	}

	for base := 0; base < numSplats; base += spzMaxChunk {
		n := minInt(spzMaxChunk, numSplats-base)
		rgbs := make([]spark.Vec3, n)
		for i := 0; i < n; i++ {
			rec, err := take(3)
			if err != nil {
				return err
			}
			rgbs[i] = codec.DecodeRGBSPZ([3]byte{rec[0], rec[1], rec[2]})
		}
		if err := d.dst.SetRGB(base, rgbs); err != nil {
			return err
		}
	}

	for base := 0; base < numSplats; base += spzMaxChunk {
		n := minInt(spzMaxChunk, numSplats-base)
		scales := make([]spark.Vec3, n)
		for i := 0; i < n; i++ {
			rec, err := take(3)
			if err != nil {
				return err
			}
			scales[i] = spark.V3(
				codec.DecodeScaleByteSPZ(rec[0]),
				codec.DecodeScaleByteSPZ(rec[1]),
				codec.DecodeScaleByteSPZ(rec[2]),
			)
		}
		if err := d.dst.SetScale(base, scales); err != nil {
			return err
		}
	}

	quatSize := 3
	if version == 3 {
		quatSize = 4
	}
	for base := 0; base < numSplats; base += spzMaxChunk {
		n := minInt(spzMaxChunk, numSplats-base)
		quats := make([]spark.Quat, n)
		for i := 0; i < n; i++ {
			rec, err := take(quatSize)
			if err != nil {
				return err
			}
			if version == 3 {
				bits := binary.LittleEndian.Uint32(rec)
				quats[i] = decodeQuatSmallestThree(bits)
			} else {
				quats[i] = decodeQuatThreeByte(rec[0], rec[1], rec[2])
			}
		}
		if err := d.dst.SetQuat(base, quats); err != nil {
			return err
		}
	}

	if shDegree >= 1 {
		shBytes := shDegree1Bytes
		if shDegree >= 2 {
			shBytes += shDegree2Bytes
		}
		if shDegree >= 3 {
			shBytes += shDegree3Bytes
		}
		for base := 0; base < numSplats; base += spzMaxChunk {
			n := minInt(spzMaxChunk, numSplats-base)
			var sh1 []splat.SH1Coeffs
			var sh2 []splat.SH2Coeffs
			var sh3 []splat.SH3Coeffs
			if shDegree >= 1 {
				sh1 = make([]splat.SH1Coeffs, n)
			}
			if shDegree >= 2 {
				sh2 = make([]splat.SH2Coeffs, n)
			}
			if shDegree >= 3 {
				sh3 = make([]splat.SH3Coeffs, n)
			}
			for i := 0; i < n; i++ {
				rec, err := take(shBytes)
				if err != nil {
					return err
				}
				off := 0
				for k := 0; k < shDegree1Bytes; k++ {
					sh1[i][k] = dequantizeSHByteSPZ(rec[off+k])
				}
				off += shDegree1Bytes
				if shDegree >= 2 {
					for k := 0; k < shDegree2Bytes; k++ {
						sh2[i][k] = dequantizeSHByteSPZ(rec[off+k])
					}
					off += shDegree2Bytes
				}
				if shDegree >= 3 {
					for k := 0; k < shDegree3Bytes; k++ {
						sh3[i][k] = dequantizeSHByteSPZ(rec[off+k])
					}
				}
			}
			if err := d.dst.SetSH1(base, sh1); err != nil {
				return err
			}
			if shDegree >= 2 {
				if err := d.dst.SetSH2(base, sh2); err != nil {
					return err
				}
			}
			if shDegree >= 3 {
				if err := d.dst.SetSH3(base, sh3); err != nil {
					return err
				}
			}
		}
	}

	if hasLod {
		for base := 0; base < numSplats; base += spzMaxChunk {
			n := minInt(spzMaxChunk, numSplats-base)
			counts := make([]uint16, n)
			for i := 0; i < n; i++ {
				rec, err := take(2)
				if err != nil {
					return err
				}
				counts[i] = binary.LittleEndian.Uint16(rec)
			}
			if err := d.dst.SetChildCount(base, counts); err != nil {
				return err
			}
		}
		for base := 0; base < numSplats; base += spzMaxChunk {
			n := minInt(spzMaxChunk, numSplats-base)
			starts := make([]uint32, n)
			for i := 0; i < n; i++ {
				rec, err := take(4)
				if err != nil {
					return err
				}
				starts[i] = binary.LittleEndian.Uint32(rec)
			}
			if err := d.dst.SetChildStart(base, starts); err != nil {
				return err
			}
		}
	}

	return d.dst.Finish()
}

const (
	shDegree1Bytes = 9
	shDegree2Bytes = 15
	shDegree3Bytes = 21
)

// quantizeSHByteSPZ and dequantizeSHByteSPZ implement SPZ's own
// per-coefficient SH quantization (distinct from codec's bit-packed
// scheme): value maps through [-1,1] -> [0,255] around 128, then is
// re-bucketed to an effective bit depth (spec §4.5 "9, then 15, then 21
// bytes... re-bucketed... bits are 5/4/4").
func quantizeSHByteSPZ(v float64, bits uint) byte {
	value := math.Round(v*128) + 128
	bucket := float64(uint32(1) << (8 - bits))
	value = math.Floor((value+bucket/2)/bucket) * bucket
	return byte(spark.Clamp(value, 0, 255))
}

func dequantizeSHByteSPZ(b byte) float64 {
	return (float64(b) - 128) / 128
}

// decodeQuatThreeByte reconstructs a unit quaternion from SPZ's v<3
// encoding: 3 bytes hold (x,y,z) over [-1,1], w is reconstructed as the
// non-negative square root of the remainder.
func decodeQuatThreeByte(bx, by, bz byte) spark.Quat {
	x := float64(bx)/127.5 - 1
	y := float64(by)/127.5 - 1
	z := float64(bz)/127.5 - 1
	w := math.Sqrt(math.Max(0, 1-(x*x+y*y+z*z)))
	return spark.NewQuat(x, y, z, w)
}

// encodeQuatThreeByte inverts decodeQuatThreeByte, folding sign so w >= 0.
func encodeQuatThreeByte(q spark.Quat) [3]byte {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	if w < 0 {
		x, y, z = -x, -y, -z
	}
	enc := func(v float64) byte {
		return byte(spark.Clamp(math.Round((v+1)*127.5), 0, 255))
	}
	return [3]byte{enc(x), enc(y), enc(z)}
}

const smallestThreeMaxValue = math.Sqrt2 / 2 // 1/sqrt(2)

// decodeQuatSmallestThree reconstructs a unit quaternion from SPZ v3's
// "smallest three" u32: the top 2 bits select which lane was omitted (and
// is reconstructed), the remaining 30 bits hold 3x(1 sign bit + 9
// magnitude bits) over [-1/sqrt(2), 1/sqrt(2)] for the other three lanes,
// most-significant lane first (spec §4.5; bit ordering is normative from
// the reference implementation, not the prose).
func decodeQuatSmallestThree(bits uint32) spark.Quat {
	largest := int(bits >> 30)
	const valueMask = uint32(1<<9) - 1
	var q [4]float64
	sumSquares := 0.0
	remaining := bits
	for j := 3; j >= 0; j-- {
		if j == largest {
			continue
		}
		value := float64(remaining & valueMask)
		sign := (remaining>>9)&1 != 0
		remaining >>= 10
		v := smallestThreeMaxValue * (value / float64(valueMask))
		if sign {
			v = -v
		}
		q[j] = v
		sumSquares += v * v
	}
	sq := 1 - sumSquares
	if sq > 0 {
		q[largest] = math.Sqrt(sq)
	} else {
		q[largest] = 0
	}
	return spark.NewQuat(q[0], q[1], q[2], q[3])
}

// encodeQuatSmallestThree inverts decodeQuatSmallestThree: it picks the
// largest-magnitude lane to omit and packs the remaining three.
func encodeQuatSmallestThree(q spark.Quat) uint32 {
	comps := [4]float64{q.X, q.Y, q.Z, q.W}
	largest := 0
	for k := 1; k < 4; k++ {
		if math.Abs(comps[k]) > math.Abs(comps[largest]) {
			largest = k
		}
	}
	if comps[largest] < 0 {
		for k := range comps {
			comps[k] = -comps[k]
		}
	}
	const valueMask = uint32(1<<9) - 1
	var bits uint32
	shift := uint32(0)
	for j := 3; j >= 0; j-- {
		if j == largest {
			continue
		}
		v := spark.Clamp(comps[j], -smallestThreeMaxValue, smallestThreeMaxValue)
		sign := v < 0
		if sign {
			v = -v
		}
		mag := uint32(math.Round(v / smallestThreeMaxValue * float64(valueMask)))
		if mag > valueMask {
			mag = valueMask
		}
		var signBit uint32
		if sign {
			signBit = 1
		}
		bits |= ((signBit << 9) | mag) << shift
		shift += 10
	}
	return bits | uint32(largest)<<30
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// EncodeSpz writes src as a gzip-wrapped SPZ version-2 stream (spec §4.5
// "SPZ", encoder half). fractionalBits controls the i24 center precision
// (default 12 per spec §6).
func EncodeSpz(src splat.Getter, fractionalBits uint8) ([]byte, error) {
	n := src.NumSplats()
	degree := src.MaxSHDegree()

	raw := make([]byte, spzHeaderSize, spzHeaderSize+n*32)
	binary.LittleEndian.PutUint32(raw[0:4], spzMagic)
	binary.LittleEndian.PutUint32(raw[4:8], spzWriteVersion)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(n))
	raw[12] = byte(degree)
	raw[13] = fractionalBits
	var flags byte
	if src.FlagAntialias() {
		flags |= 0x01
	}
	if src.HasLodTree() {
		flags |= 0x80
	}
	raw[14] = flags
	raw[15] = 0

	for base := 0; base < n; base += spzMaxChunk {
		count := minInt(spzMaxChunk, n-base)
		centers, err := src.GetCenter(base, count)
		if err != nil {
			return nil, err
		}
		for _, c := range centers {
			raw = codec.EncodeCenterI24(raw, c, fractionalBits)
		}
	}

	for base := 0; base < n; base += spzMaxChunk {
		count := minInt(spzMaxChunk, n-base)
		opacities, err := src.GetOpacity(base, count)
		if err != nil {
			return nil, err
		}
		for _, o := range opacities {
			raw = append(raw, codec.EncodeOpacitySPZ(o))
		}
	}

	for base := 0; base < n; base += spzMaxChunk {
		count := minInt(spzMaxChunk, n-base)
		rgbs, err := src.GetRGB(base, count)
		if err != nil {
			return nil, err
		}
		for _, c := range rgbs {
			enc := codec.EncodeRGBSPZ(c)
			raw = append(raw, enc[0], enc[1], enc[2])
		}
	}

	for base := 0; base < n; base += spzMaxChunk {
		count := minInt(spzMaxChunk, n-base)
		scales, err := src.GetScale(base, count)
		if err != nil {
			return nil, err
		}
		for _, s := range scales {
			raw = append(raw,
				codec.EncodeScaleByteSPZ(s.X),
				codec.EncodeScaleByteSPZ(s.Y),
				codec.EncodeScaleByteSPZ(s.Z))
		}
	}

	for base := 0; base < n; base += spzMaxChunk {
		count := minInt(spzMaxChunk, n-base)
		quats, err := src.GetQuat(base, count)
		if err != nil {
			return nil, err
		}
		for _, q := range quats {
			enc := encodeQuatThreeByte(q)
			raw = append(raw, enc[0], enc[1], enc[2])
		}
	}

	if degree >= 1 {
		for base := 0; base < n; base += spzMaxChunk {
			count := minInt(spzMaxChunk, n-base)
			sh1, err := src.GetSH1(base, count)
			if err != nil {
				return nil, err
			}
			var sh2 []splat.SH2Coeffs
			var sh3 []splat.SH3Coeffs
			if degree >= 2 {
				if sh2, err = src.GetSH2(base, count); err != nil {
					return nil, err
				}
			}
			if degree >= 3 {
				if sh3, err = src.GetSH3(base, count); err != nil {
					return nil, err
				}
			}
			for i := 0; i < count; i++ {
				for _, v := range sh1[i] {
					raw = append(raw, quantizeSHByteSPZ(v, 5))
				}
				if degree >= 2 {
					for _, v := range sh2[i] {
						raw = append(raw, quantizeSHByteSPZ(v, 4))
					}
				}
				if degree >= 3 {
					for _, v := range sh3[i] {
						raw = append(raw, quantizeSHByteSPZ(v, 4))
					}
				}
			}
		}
	}

	if src.HasLodTree() {
		for base := 0; base < n; base += spzMaxChunk {
			count := minInt(spzMaxChunk, n-base)
			counts, err := src.GetChildCount(base, count)
			if err != nil {
				return nil, err
			}
			for _, c := range counts {
				var b [2]byte
				binary.LittleEndian.PutUint16(b[:], c)
				raw = append(raw, b[:]...)
			}
		}
		for base := 0; base < n; base += spzMaxChunk {
			count := minInt(spzMaxChunk, n-base)
			starts, err := src.GetChildStart(base, count)
			if err != nil {
				return nil, err
			}
			for _, s := range starts {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], s)
				raw = append(raw, b[:]...)
			}
		}
	}

	var out bytes.Buffer
	gw := gzip.NewWriter(&out)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
