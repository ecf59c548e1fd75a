package format

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

// antisplatBytesPerSplat is the fixed .splat record size: 6 f32 (center,
// scale) + 4 u8 (RGB, opacity) + 4 u8 (quaternion) = 32 bytes (spec §4.5).
const antisplatBytesPerSplat = 32

// AntisplatDecoder decodes a fixed 32-byte-record .splat stream into a
// splat.Receiver. The format carries no SH data.
type AntisplatDecoder struct {
	buf  bytes.Buffer
	dst  splat.Receiver
	done bool
}

// NewAntisplatDecoder returns a decoder that emits into dst.
func NewAntisplatDecoder(dst splat.Receiver) *AntisplatDecoder {
	return &AntisplatDecoder{dst: dst}
}

// Push buffers bytes of the input stream.
func (d *AntisplatDecoder) Push(data []byte) error {
	d.buf.Write(data)
	return nil
}

// Finish parses the fully-buffered stream and emits it into dst.
func (d *AntisplatDecoder) Finish() error {
	if d.done {
		return nil
	}
	d.done = true

	raw := d.buf.Bytes()
	if len(raw)%antisplatBytesPerSplat != 0 {
		return errMalformedf("splat: file size %d not a multiple of %d", len(raw), antisplatBytesPerSplat)
	}
	numSplats := len(raw) / antisplatBytesPerSplat

	if err := d.dst.Init(numSplats, 0, false); err != nil {
		return err
	}

	for base := 0; base < numSplats; base += ksplatMaxChunk {
		count := minInt(ksplatMaxChunk, numSplats-base)
		centers := make([]spark.Vec3, count)
		scales := make([]spark.Vec3, count)
		rgbs := make([]spark.Vec3, count)
		opacities := make([]float64, count)
		quats := make([]spark.Quat, count)

		for i := 0; i < count; i++ {
			byteBase := (base + i) * antisplatBytesPerSplat
			record := raw[byteBase : byteBase+antisplatBytesPerSplat]

			x := math.Float32frombits(binary.LittleEndian.Uint32(record[0:4]))
			y := math.Float32frombits(binary.LittleEndian.Uint32(record[4:8]))
			z := math.Float32frombits(binary.LittleEndian.Uint32(record[8:12]))
			sx := math.Float32frombits(binary.LittleEndian.Uint32(record[12:16]))
			sy := math.Float32frombits(binary.LittleEndian.Uint32(record[16:20]))
			sz := math.Float32frombits(binary.LittleEndian.Uint32(record[20:24]))

			centers[i] = spark.V3(float64(x), float64(y), float64(z))
			scales[i] = spark.V3(float64(sx), float64(sy), float64(sz))
			rgbs[i] = spark.V3(float64(record[24])/255, float64(record[25])/255, float64(record[26])/255)
			opacities[i] = float64(record[27]) / 255

			qw := (float64(record[28]) - 128) / 128
			qx := (float64(record[29]) - 128) / 128
			qy := (float64(record[30]) - 128) / 128
			qz := (float64(record[31]) - 128) / 128
			quats[i] = spark.NewQuat(qx, qy, qz, qw)
		}

		if err := d.dst.SetBatch(splat.Batch{
			Base: base, Count: count,
			Center: centers, Opacity: opacities, RGB: rgbs, Scale: scales, Quat: quats,
		}); err != nil {
			return err
		}
	}

	return d.dst.Finish()
}

// EncodeAntisplat writes src as a fixed 32-byte-record .splat stream. It
// rejects any source carrying SH data, since the format has no field for it.
func EncodeAntisplat(src splat.Getter) ([]byte, error) {
	if src.MaxSHDegree() > 0 {
		return nil, errUnsupportedf("splat: format does not store SH data, source has degree %d", src.MaxSHDegree())
	}

	numSplats := src.NumSplats()
	out := make([]byte, numSplats*antisplatBytesPerSplat)

	for base := 0; base < numSplats; base += ksplatMaxChunk {
		count := minInt(ksplatMaxChunk, numSplats-base)
		centers, err := src.GetCenter(base, count)
		if err != nil {
			return nil, err
		}
		scales, err := src.GetScale(base, count)
		if err != nil {
			return nil, err
		}
		rgbs, err := src.GetRGB(base, count)
		if err != nil {
			return nil, err
		}
		opacities, err := src.GetOpacity(base, count)
		if err != nil {
			return nil, err
		}
		quats, err := src.GetQuat(base, count)
		if err != nil {
			return nil, err
		}

		for i := 0; i < count; i++ {
			byteBase := (base + i) * antisplatBytesPerSplat
			record := out[byteBase : byteBase+antisplatBytesPerSplat]

			c := centers[i]
			binary.LittleEndian.PutUint32(record[0:4], math.Float32bits(float32(c.X)))
			binary.LittleEndian.PutUint32(record[4:8], math.Float32bits(float32(c.Y)))
			binary.LittleEndian.PutUint32(record[8:12], math.Float32bits(float32(c.Z)))

			s := scales[i]
			binary.LittleEndian.PutUint32(record[12:16], math.Float32bits(float32(s.X)))
			binary.LittleEndian.PutUint32(record[16:20], math.Float32bits(float32(s.Y)))
			binary.LittleEndian.PutUint32(record[20:24], math.Float32bits(float32(s.Z)))

			rgb := rgbs[i]
			record[24] = floatToByteClamped(rgb.X)
			record[25] = floatToByteClamped(rgb.Y)
			record[26] = floatToByteClamped(rgb.Z)
			record[27] = floatToByteClamped(opacities[i])

			q := quats[i]
			record[28] = quantizeQuatByte(q.W)
			record[29] = quantizeQuatByte(q.X)
			record[30] = quantizeQuatByte(q.Y)
			record[31] = quantizeQuatByte(q.Z)
		}
	}

	return out, nil
}

func quantizeQuatByte(v float64) byte {
	clamped := spark.Clamp(v, -1, 1)
	return byte(spark.Clamp(math.Round(clamped*128)+128, 0, 255))
}
