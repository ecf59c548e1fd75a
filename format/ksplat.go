package format

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/codec"
	"github.com/sparkjsdev/spark/splat"
)

const (
	ksplatHeaderBytes  = 4096
	ksplatSectionBytes = 1024
	ksplatMaxChunk     = 65536
)

// ksplatCompression describes one compression level's per-field byte
// layout within a splat record (spec §4.5 "KSPLAT").
type ksplatCompression struct {
	bytesPerCenter     int
	bytesPerScale      int
	bytesPerRotation   int
	bytesPerColor      int
	bytesPerSHComp     int
	scaleOffsetBytes   int
	rotationOffsetBytes int
	colorOffsetBytes   int
	shOffsetBytes      int
	scaleRange         uint32
}

var ksplatCompressionTable = [3]ksplatCompression{
	{bytesPerCenter: 12, bytesPerScale: 12, bytesPerRotation: 16, bytesPerColor: 4, bytesPerSHComp: 4,
		scaleOffsetBytes: 12, rotationOffsetBytes: 24, colorOffsetBytes: 40, shOffsetBytes: 44, scaleRange: 1},
	{bytesPerCenter: 6, bytesPerScale: 6, bytesPerRotation: 8, bytesPerColor: 4, bytesPerSHComp: 2,
		scaleOffsetBytes: 6, rotationOffsetBytes: 12, colorOffsetBytes: 20, shOffsetBytes: 24, scaleRange: 32767},
	{bytesPerCenter: 6, bytesPerScale: 6, bytesPerRotation: 8, bytesPerColor: 4, bytesPerSHComp: 1,
		scaleOffsetBytes: 6, rotationOffsetBytes: 12, colorOffsetBytes: 20, shOffsetBytes: 24, scaleRange: 32767},
}

var ksplatSHComponentCounts = [4]int{0, 9, 24, 45}

// The three SH remapping tables map between the two layouts: KSPLAT stores
// each band's coefficients channel by channel (all R, then all G, then all
// B), while the tables index SH1/SH2/SH3Coeffs with each coefficient's
// three channels contiguous (coefficient-major). index[dst] = file position
// (channel-major, counted from the start of the SH block) for array
// position dst in coefficient-major order.
var ksplatSH1Index = [9]int{0, 3, 6, 1, 4, 7, 2, 5, 8}
var ksplatSH2Index = [15]int{9, 14, 19, 10, 15, 20, 11, 16, 21, 12, 17, 22, 13, 18, 23}
var ksplatSH3Index = [21]int{24, 31, 38, 25, 32, 39, 26, 33, 40, 27, 34, 41, 28, 35, 42, 29, 36, 43, 30, 37, 44}

// KsplatDecoder decodes a .ksplat stream into a splat.Receiver (spec
// §4.5 "KSPLAT").
type KsplatDecoder struct {
	buf  bytes.Buffer
	dst  splat.Receiver
	done bool
}

// NewKsplatDecoder returns a decoder that emits into dst.
func NewKsplatDecoder(dst splat.Receiver) *KsplatDecoder {
	return &KsplatDecoder{dst: dst}
}

// Push buffers bytes of the input stream.
func (d *KsplatDecoder) Push(data []byte) error {
	d.buf.Write(data)
	return nil
}

func ku16(b []byte, off int) (uint16, error) {
	if off+2 > len(b) {
		return 0, errMalformedf("ksplat: unexpected EOF reading u16 at %d", off)
	}
	return binary.LittleEndian.Uint16(b[off:]), nil
}

func ku32(b []byte, off int) (uint32, error) {
	if off+4 > len(b) {
		return 0, errMalformedf("ksplat: unexpected EOF reading u32 at %d", off)
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}

func kf32(b []byte, off int) (float32, error) {
	u, err := ku32(b, off)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// Finish parses the fully-buffered stream and emits it into dst.
func (d *KsplatDecoder) Finish() error {
	if d.done {
		return nil
	}
	d.done = true

	raw := d.buf.Bytes()
	if len(raw) < ksplatHeaderBytes {
		return errMalformedf("ksplat: file too small for header")
	}
	versionMajor, versionMinor := raw[0], raw[1]
	if versionMajor != 0 || versionMinor < 1 {
		return errUnsupportedf("ksplat: unsupported version %d.%d", versionMajor, versionMinor)
	}
	maxSectionCount64, err := ku32(raw, 4)
	if err != nil {
		return err
	}
	maxSectionCount := int(maxSectionCount64)
	numSplats64, err := ku32(raw, 16)
	if err != nil {
		return err
	}
	numSplats := int(numSplats64)
	compLevel64, err := ku16(raw, 20)
	if err != nil {
		return err
	}
	compLevel := int(compLevel64)
	if compLevel > 2 {
		spark.Logger().Warn("ksplat: unrecognized compression level, falling back to raw layout", "level", compLevel)
		compLevel = 0
	}
	comp := ksplatCompressionTable[compLevel]

	minSH, err := kf32(raw, 36)
	if err != nil {
		return err
	}
	if minSH == 0 {
		minSH = -1.5
	}
	maxSH, err := kf32(raw, 40)
	if err != nil {
		return err
	}
	if maxSH == 0 {
		maxSH = 1.5
	}

	// Pre-scan section headers to find the global max SH degree and
	// section byte extents.
	headerOffset := ksplatHeaderBytes
	sectionBase := ksplatHeaderBytes + maxSectionCount*ksplatSectionBytes
	maxSHDegree := 0
	sectionStorageSizes := make([]int, maxSectionCount)
	for s := 0; s < maxSectionCount; s++ {
		if headerOffset+ksplatSectionBytes > len(raw) {
			return errMalformedf("ksplat: unexpected end of file reading section headers")
		}
		shDegree64, err := ku16(raw, headerOffset+40)
		if err != nil {
			return err
		}
		shDegree := int(shDegree64)
		if shDegree > maxSHDegree {
			maxSHDegree = shDegree
		}
		sectionMaxSplatCount64, err := ku32(raw, headerOffset+4)
		if err != nil {
			return err
		}
		shComponents := 0
		if shDegree < len(ksplatSHComponentCounts) {
			shComponents = ksplatSHComponentCounts[shDegree]
		}
		bytesPerSplat := comp.bytesPerCenter + comp.bytesPerScale + comp.bytesPerRotation +
			comp.bytesPerColor + shComponents*comp.bytesPerSHComp
		bucketStorageSize64, err := ku16(raw, headerOffset+20)
		if err != nil {
			return err
		}
		bucketCount64, err := ku32(raw, headerOffset+12)
		if err != nil {
			return err
		}
		bucketsMeta64, err := ku32(raw, headerOffset+36)
		if err != nil {
			return err
		}
		bucketsStorage := int(bucketStorageSize64)*int(bucketCount64) + int(bucketsMeta64)*4
		storageSize := bytesPerSplat*int(sectionMaxSplatCount64) + bucketsStorage
		sectionStorageSizes[s] = storageSize
		sectionBase += storageSize
		headerOffset += ksplatSectionBytes
	}
	if maxSHDegree > 3 {
		return errMalformedf("ksplat: sh degree %d > 3", maxSHDegree)
	}

	if err := d.dst.Init(numSplats, maxSHDegree, false); err != nil {
		return err
	}

	headerOffset = ksplatHeaderBytes
	sectionBase = ksplatHeaderBytes + maxSectionCount*ksplatSectionBytes
	totalDecoded := 0
	for s := 0; s < maxSectionCount; s++ {
		sectionSplatCount64, err := ku32(raw, headerOffset+0)
		if err != nil {
			return err
		}
		sectionSplatCount := int(sectionSplatCount64)
		spark.Logger().Debug("ksplat: decoding section", "section", s, "n", sectionSplatCount)
		bucketSize64, err := ku32(raw, headerOffset+8)
		if err != nil {
			return err
		}
		bucketSize := int(bucketSize64)
		bucketCount64, err := ku32(raw, headerOffset+12)
		if err != nil {
			return err
		}
		bucketCount := int(bucketCount64)
		bucketBlockSize, err := kf32(raw, headerOffset+16)
		if err != nil {
			return err
		}
		bucketStorageSizeBytes64, err := ku16(raw, headerOffset+20)
		if err != nil {
			return err
		}
		bucketStorageSizeBytes := int(bucketStorageSizeBytes64)
		compressionScaleRange64, err := ku32(raw, headerOffset+24)
		if err != nil {
			return err
		}
		compressionScaleRange := float32(comp.scaleRange)
		if compressionScaleRange64 != 0 {
			compressionScaleRange = float32(compressionScaleRange64)
		}
		fullBucketCount64, err := ku32(raw, headerOffset+32)
		if err != nil {
			return err
		}
		fullBucketCount := int(fullBucketCount64)
		partialBucketCount64, err := ku32(raw, headerOffset+36)
		if err != nil {
			return err
		}
		partialBucketCount := int(partialBucketCount64)
		shDegree64, err := ku16(raw, headerOffset+40)
		if err != nil {
			return err
		}
		shDegree := int(shDegree64)
		shComponents := 0
		if shDegree < len(ksplatSHComponentCounts) {
			shComponents = ksplatSHComponentCounts[shDegree]
		}

		bucketsStorageSize := bucketStorageSizeBytes*bucketCount + partialBucketCount*4
		bytesPerSplat := comp.bytesPerCenter + comp.bytesPerScale + comp.bytesPerRotation +
			comp.bytesPerColor + shComponents*comp.bytesPerSHComp
		splatDataStorageSize := bytesPerSplat * int(sectionSplatCount64)
		_ = splatDataStorageSize // section_max_splat_count is used for this in the reference; tracked via sectionStorageSizes
		storageSize := sectionStorageSizes[s]

		if sectionBase+storageSize > len(raw) {
			return errMalformedf("ksplat: truncated file in section %d", s)
		}

		bucketsBase := sectionBase + partialBucketCount*4
		var bucketArray []float32
		if bucketCount > 0 && bucketStorageSizeBytes > 0 {
			bucketArray = make([]float32, bucketCount*3)
			for i := range bucketArray {
				v, err := kf32(raw, bucketsBase+i*4)
				if err != nil {
					return errMalformedf("ksplat: bucket array out of bounds")
				}
				bucketArray[i] = v
			}
		}
		var partialLengths []uint32
		if partialBucketCount > 0 {
			partialLengths = make([]uint32, partialBucketCount)
			for i := range partialLengths {
				v, err := ku32(raw, sectionBase+i*4)
				if err != nil {
					return errMalformedf("ksplat: partial bucket lengths out of bounds")
				}
				partialLengths[i] = v
			}
		}

		dataBase := sectionBase + bucketsStorageSize
		dataEnd := dataBase + bytesPerSplat*int(sectionSplatCount64)
		if dataEnd > len(raw) {
			return errMalformedf("ksplat: section %d data out of bounds", s)
		}
		data := raw[dataBase:dataEnd]

		centers := make([]spark.Vec3, sectionSplatCount)
		scales := make([]spark.Vec3, sectionSplatCount)
		quats := make([]spark.Quat, sectionSplatCount)
		rgbs := make([]spark.Vec3, sectionSplatCount)
		opacities := make([]float64, sectionSplatCount)
		var sh1 []splat.SH1Coeffs
		var sh2 []splat.SH2Coeffs
		var sh3 []splat.SH3Coeffs
		if shDegree >= 1 {
			sh1 = make([]splat.SH1Coeffs, sectionSplatCount)
		}
		if shDegree >= 2 {
			sh2 = make([]splat.SH2Coeffs, sectionSplatCount)
		}
		if shDegree >= 3 {
			sh3 = make([]splat.SH3Coeffs, sectionSplatCount)
		}

		var compressionScaleFactor float32
		if compLevel != 0 {
			compressionScaleFactor = bucketBlockSize / 2 / compressionScaleRange
		}

		partialBucketIndex := fullBucketCount
		partialBucketBase := fullBucketCount * bucketSize
		bucketCenter := func(bucketIndex, axis int) float32 {
			idx := bucketIndex*3 + axis
			if idx < 0 || idx >= len(bucketArray) {
				return 0
			}
			return bucketArray[idx]
		}

		for i := 0; i < sectionSplatCount; i++ {
			splatOffset := i * bytesPerSplat

			bucketIndex := partialBucketIndex
			if bucketSize > 0 && i < fullBucketCount*bucketSize {
				bucketIndex = i / bucketSize
			} else if partialLengths != nil {
				idx := partialBucketIndex - fullBucketCount
				if idx >= 0 && idx < len(partialLengths) && i >= partialBucketBase+int(partialLengths[idx]) {
					partialBucketIndex++
					partialBucketBase += int(partialLengths[idx])
					bucketIndex = partialBucketIndex
				}
			}

			var center spark.Vec3
			if compLevel == 0 {
				cx, err := kf32(data, splatOffset+0)
				if err != nil {
					return err
				}
				cy, err := kf32(data, splatOffset+4)
				if err != nil {
					return err
				}
				cz, err := kf32(data, splatOffset+8)
				if err != nil {
					return err
				}
				center = spark.V3(float64(cx), float64(cy), float64(cz))
			} else {
				rx, err := ku16(data, splatOffset+0)
				if err != nil {
					return err
				}
				ry, err := ku16(data, splatOffset+2)
				if err != nil {
					return err
				}
				rz, err := ku16(data, splatOffset+4)
				if err != nil {
					return err
				}
				x := (float32(rx)-float32(comp.scaleRange))*compressionScaleFactor + bucketCenter(bucketIndex, 0)
				y := (float32(ry)-float32(comp.scaleRange))*compressionScaleFactor + bucketCenter(bucketIndex, 1)
				z := (float32(rz)-float32(comp.scaleRange))*compressionScaleFactor + bucketCenter(bucketIndex, 2)
				center = spark.V3(float64(x), float64(y), float64(z))
			}
			centers[i] = center

			so := comp.scaleOffsetBytes
			stride2 := 4
			if compLevel != 0 {
				stride2 = 2
			}
			sx, err := readKsplatScaleOrQuatComponent(data, splatOffset+so+0, compLevel)
			if err != nil {
				return err
			}
			sy, err := readKsplatScaleOrQuatComponent(data, splatOffset+so+stride2, compLevel)
			if err != nil {
				return err
			}
			sz, err := readKsplatScaleOrQuatComponent(data, splatOffset+so+2*stride2, compLevel)
			if err != nil {
				return err
			}
			scales[i] = spark.V3(sx, sy, sz)

			ro := comp.rotationOffsetBytes
			qw, err := readKsplatScaleOrQuatComponent(data, splatOffset+ro+0, compLevel)
			if err != nil {
				return err
			}
			qx, err := readKsplatScaleOrQuatComponent(data, splatOffset+ro+stride2, compLevel)
			if err != nil {
				return err
			}
			qy, err := readKsplatScaleOrQuatComponent(data, splatOffset+ro+2*stride2, compLevel)
			if err != nil {
				return err
			}
			qz, err := readKsplatScaleOrQuatComponent(data, splatOffset+ro+3*stride2, compLevel)
			if err != nil {
				return err
			}
			quats[i] = spark.NewQuat(qx, qy, qz, qw)

			co := comp.colorOffsetBytes
			if splatOffset+co+4 > len(data) {
				return errMalformedf("ksplat: color/opacity out of bounds")
			}
			rgbs[i] = spark.V3(
				float64(data[splatOffset+co+0])/255,
				float64(data[splatOffset+co+1])/255,
				float64(data[splatOffset+co+2])/255,
			)
			opacities[i] = float64(data[splatOffset+co+3]) / 255

			if shDegree >= 1 {
				shBase := comp.shOffsetBytes
				readSH := func(component int) (float64, error) {
					offset := splatOffset + shBase + component*comp.bytesPerSHComp
					switch compLevel {
					case 0:
						v, err := kf32(data, offset)
						return float64(v), err
					case 1:
						v, err := ku16(data, offset)
						if err != nil {
							return 0, err
						}
						return codec.F16ToFloat64(v), nil
					default:
						if offset >= len(data) {
							return 0, errMalformedf("ksplat: sh byte out of bounds")
						}
						t := float64(data[offset]) / 255
						return float64(minSH) + t*float64(maxSH-minSH), nil
					}
				}
				var c1 splat.SH1Coeffs
				for dst, key := range ksplatSH1Index {
					v, err := readSH(key)
					if err != nil {
						return err
					}
					c1[dst] = v
				}
				sh1[i] = c1
				if shDegree >= 2 {
					var c2 splat.SH2Coeffs
					for dst, key := range ksplatSH2Index {
						v, err := readSH(key)
						if err != nil {
							return err
						}
						c2[dst] = v
					}
					sh2[i] = c2
				}
				if shDegree >= 3 {
					var c3 splat.SH3Coeffs
					for dst, key := range ksplatSH3Index {
						v, err := readSH(key)
						if err != nil {
							return err
						}
						c3[dst] = v
					}
					sh3[i] = c3
				}
			}
		}

		for base := 0; base < sectionSplatCount; base += ksplatMaxChunk {
			n := minInt(ksplatMaxChunk, sectionSplatCount-base)
			out := totalDecoded + base
			batch := splat.Batch{
				Base: out, Count: n,
				Center: centers[base : base+n], Opacity: opacities[base : base+n],
				RGB: rgbs[base : base+n], Scale: scales[base : base+n], Quat: quats[base : base+n],
			}
			if shDegree >= 1 {
				batch.SH1 = sh1[base : base+n]
			}
			if shDegree >= 2 {
				batch.SH2 = sh2[base : base+n]
			}
			if shDegree >= 3 {
				batch.SH3 = sh3[base : base+n]
			}
			if err := d.dst.SetBatch(batch); err != nil {
				return err
			}
		}

		totalDecoded += sectionSplatCount
		sectionBase += storageSize
		headerOffset += ksplatSectionBytes
	}

	return d.dst.Finish()
}

// readKsplatScaleOrQuatComponent reads a single scale or rotation
// component, f32 at compression level 0 and f16 otherwise.
func readKsplatScaleOrQuatComponent(data []byte, offset, compLevel int) (float64, error) {
	if compLevel == 0 {
		v, err := kf32(data, offset)
		return float64(v), err
	}
	v, err := ku16(data, offset)
	if err != nil {
		return 0, err
	}
	return codec.F16ToFloat64(v), nil
}

// EncodeKsplat writes src as a .ksplat stream at compression level 0, the
// only level spec §4.5 requires the encoder to support (single section,
// one bucket spanning the whole section).
func EncodeKsplat(src splat.Getter) ([]byte, error) {
	numSplats := src.NumSplats()
	shDegree := src.MaxSHDegree()
	if shDegree > 3 {
		shDegree = 3
	}
	shComponents := ksplatSHComponentCounts[shDegree]
	comp := ksplatCompressionTable[0]
	bytesPerSplat := comp.bytesPerCenter + comp.bytesPerScale + comp.bytesPerRotation +
		comp.bytesPerColor + shComponents*comp.bytesPerSHComp

	dataBase := ksplatHeaderBytes + ksplatSectionBytes
	total := dataBase + bytesPerSplat*numSplats
	out := make([]byte, total)

	out[0] = 0
	out[1] = 1
	binary.LittleEndian.PutUint32(out[4:], 1)
	binary.LittleEndian.PutUint32(out[16:], uint32(numSplats))
	binary.LittleEndian.PutUint16(out[20:], 0)
	binary.LittleEndian.PutUint32(out[36:], math.Float32bits(-1.5))
	binary.LittleEndian.PutUint32(out[40:], math.Float32bits(1.5))

	sh := ksplatHeaderBytes
	binary.LittleEndian.PutUint32(out[sh+0:], uint32(numSplats))
	binary.LittleEndian.PutUint32(out[sh+4:], uint32(numSplats))
	bucketSize := numSplats
	if bucketSize == 0 {
		bucketSize = 1
	}
	binary.LittleEndian.PutUint32(out[sh+8:], uint32(bucketSize))
	binary.LittleEndian.PutUint32(out[sh+12:], 1)
	binary.LittleEndian.PutUint32(out[sh+16:], 0)
	binary.LittleEndian.PutUint16(out[sh+20:], 0)
	binary.LittleEndian.PutUint32(out[sh+24:], comp.scaleRange)
	binary.LittleEndian.PutUint32(out[sh+32:], 1)
	binary.LittleEndian.PutUint32(out[sh+36:], 0)
	binary.LittleEndian.PutUint16(out[sh+40:], uint16(shDegree))

	offset := dataBase
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
		quats, err := src.GetQuat(base, count)
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
		var sh1 []splat.SH1Coeffs
		var sh2 []splat.SH2Coeffs
		var sh3 []splat.SH3Coeffs
		if shDegree >= 1 {
			if sh1, err = src.GetSH1(base, count); err != nil {
				return nil, err
			}
		}
		if shDegree >= 2 {
			if sh2, err = src.GetSH2(base, count); err != nil {
				return nil, err
			}
		}
		if shDegree >= 3 {
			if sh3, err = src.GetSH3(base, count); err != nil {
				return nil, err
			}
		}

		for i := 0; i < count; i++ {
			c := centers[i]
			binary.LittleEndian.PutUint32(out[offset+0:], math.Float32bits(float32(c.X)))
			binary.LittleEndian.PutUint32(out[offset+4:], math.Float32bits(float32(c.Y)))
			binary.LittleEndian.PutUint32(out[offset+8:], math.Float32bits(float32(c.Z)))

			s := scales[i]
			so := comp.scaleOffsetBytes
			binary.LittleEndian.PutUint32(out[offset+so+0:], math.Float32bits(float32(s.X)))
			binary.LittleEndian.PutUint32(out[offset+so+4:], math.Float32bits(float32(s.Y)))
			binary.LittleEndian.PutUint32(out[offset+so+8:], math.Float32bits(float32(s.Z)))

			q := quats[i]
			ro := comp.rotationOffsetBytes
			binary.LittleEndian.PutUint32(out[offset+ro+0:], math.Float32bits(float32(q.W)))
			binary.LittleEndian.PutUint32(out[offset+ro+4:], math.Float32bits(float32(q.X)))
			binary.LittleEndian.PutUint32(out[offset+ro+8:], math.Float32bits(float32(q.Y)))
			binary.LittleEndian.PutUint32(out[offset+ro+12:], math.Float32bits(float32(q.Z)))

			rgb := rgbs[i]
			co := comp.colorOffsetBytes
			out[offset+co+0] = floatToByteClamped(rgb.X)
			out[offset+co+1] = floatToByteClamped(rgb.Y)
			out[offset+co+2] = floatToByteClamped(rgb.Z)
			out[offset+co+3] = floatToByteClamped(opacities[i])

			if shDegree >= 1 {
				shBase := comp.shOffsetBytes
				for chMajor, key := range ksplatSH1Index {
					binary.LittleEndian.PutUint32(out[offset+shBase+key*comp.bytesPerSHComp:], math.Float32bits(float32(sh1[i][chMajor])))
				}
				if shDegree >= 2 {
					for chMajor, key := range ksplatSH2Index {
						binary.LittleEndian.PutUint32(out[offset+shBase+key*comp.bytesPerSHComp:], math.Float32bits(float32(sh2[i][chMajor])))
					}
				}
				if shDegree >= 3 {
					for chMajor, key := range ksplatSH3Index {
						binary.LittleEndian.PutUint32(out[offset+shBase+key*comp.bytesPerSHComp:], math.Float32bits(float32(sh3[i][chMajor])))
					}
				}
			}

			offset += bytesPerSplat
		}
	}

	return out, nil
}

func floatToByteClamped(v float64) byte {
	return byte(spark.Clamp(math.Round(v*255), 0, 255))
}
