package format

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

const plyHeaderLimit = 64 * 1024

// plyPropType is a PLY scalar property type. Only the two types spec §4.5
// requires are supported; an unrecognized type name is a decode error, not
// a silent skip.
type plyPropType int

const (
	plyFloat plyPropType = iota
	plyUChar
)

func (t plyPropType) size() int {
	if t == plyUChar {
		return 1
	}
	return 4
}

// plyField is one header "property TYPE name" line's parsed form: its
// type and its byte offset within a vertex record, recovered at runtime
// rather than hard-coded (spec §9 "Dynamic field layout").
type plyField struct {
	typ    plyPropType
	offset int
}

// plyLayout maps property name to its field, plus the record's total byte
// stride and vertex count.
type plyLayout struct {
	fields      map[string]plyField
	stride      int
	numVertices int
	shDegree    int // 0..3, derived from the f_rest count
}

// shOffset gives the cumulative per-channel coefficient count through SH
// bands 1..d (spec §4.5 "offset(1)=3, offset(2)=8, offset(3)=15").
func shOffset(d int) int {
	switch d {
	case 0:
		return 0
	case 1:
		return 3
	case 2:
		return 8
	case 3:
		return 15
	}
	return 0
}

func shDegreeFromRestCount(k int) (int, error) {
	switch k {
	case 0:
		return 0, nil
	case 9:
		return 1, nil
	case 24:
		return 2, nil
	case 45:
		return 3, nil
	}
	return 0, errMalformedf("ply: f_rest count %d not in {0,9,24,45}", k)
}

// PlyDecoder decodes a binary-little-endian PLY point cloud into a
// splat.Receiver (spec §4.5 "PLY").
type PlyDecoder struct {
	buf  bytes.Buffer
	dst  splat.Receiver
	done bool
}

// NewPlyDecoder returns a decoder that emits into dst.
func NewPlyDecoder(dst splat.Receiver) *PlyDecoder {
	return &PlyDecoder{dst: dst}
}

// Push buffers bytes of the input stream.
func (d *PlyDecoder) Push(data []byte) error {
	if d.buf.Len()+len(data) > plyHeaderLimit && !d.headerSeen() {
		return errResourceLimitf("ply: header exceeds %d bytes without end_header", plyHeaderLimit)
	}
	d.buf.Write(data)
	return nil
}

func (d *PlyDecoder) headerSeen() bool {
	return bytes.Contains(d.buf.Bytes(), []byte("end_header\n"))
}

// Finish parses the fully-buffered input and emits it into dst.
func (d *PlyDecoder) Finish() error {
	if d.done {
		return nil
	}
	d.done = true

	raw := d.buf.Bytes()
	if len(raw) < 4 || !bytes.Equal(raw[:3], []byte("ply")) || raw[3] != '\n' {
		return errMalformedf("ply: bad magic")
	}

	headerEnd := bytes.Index(raw, []byte("end_header\n"))
	if headerEnd < 0 {
		if len(raw) > plyHeaderLimit {
			return errResourceLimitf("ply: header exceeds %d bytes", plyHeaderLimit)
		}
		return errMalformedf("ply: truncated header (no end_header)")
	}
	headerEnd += len("end_header\n")
	if headerEnd > plyHeaderLimit {
		return errResourceLimitf("ply: header length %d exceeds %d byte cap", headerEnd, plyHeaderLimit)
	}

	layout, err := parsePlyHeader(string(raw[:headerEnd]))
	if err != nil {
		return err
	}

	body := raw[headerEnd:]
	need := layout.stride * layout.numVertices
	if len(body) < need {
		return errMalformedf("ply: truncated body, want %d bytes have %d", need, len(body))
	}

	if err := d.dst.Init(layout.numVertices, layout.shDegree, false); err != nil {
		return err
	}

	centers := make([]spark.Vec3, layout.numVertices)
	opacities := make([]float64, layout.numVertices)
	rgbs := make([]spark.Vec3, layout.numVertices)
	scales := make([]spark.Vec3, layout.numVertices)
	quats := make([]spark.Quat, layout.numVertices)
	var sh1 []splat.SH1Coeffs
	var sh2 []splat.SH2Coeffs
	var sh3 []splat.SH3Coeffs
	switch layout.shDegree {
	case 1:
		sh1 = make([]splat.SH1Coeffs, layout.numVertices)
	case 2:
		sh1 = make([]splat.SH1Coeffs, layout.numVertices)
		sh2 = make([]splat.SH2Coeffs, layout.numVertices)
	case 3:
		sh1 = make([]splat.SH1Coeffs, layout.numVertices)
		sh2 = make([]splat.SH2Coeffs, layout.numVertices)
		sh3 = make([]splat.SH3Coeffs, layout.numVertices)
	}

	readFloat := func(rec []byte, name string) (float64, error) {
		f, ok := layout.fields[name]
		if !ok {
			return 0, errMalformedf("ply: missing required property %q", name)
		}
		if f.typ != plyFloat {
			return 0, errMalformedf("ply: property %q has unexpected type", name)
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[f.offset:]))), nil
	}

	stride := layout.stride
	for i := 0; i < layout.numVertices; i++ {
		rec := body[i*stride : (i+1)*stride]

		x, err := readFloat(rec, "x")
		if err != nil {
			return err
		}
		y, err := readFloat(rec, "y")
		if err != nil {
			return err
		}
		z, err := readFloat(rec, "z")
		if err != nil {
			return err
		}
		centers[i] = spark.V3(x, y, z)

		var scale spark.Vec3
		for axis, name := range []string{"scale_0", "scale_1", "scale_2"} {
			v, err := readFloat(rec, name)
			if err != nil {
				return err
			}
			ln := math.Exp(v)
			switch axis {
			case 0:
				scale.X = ln
			case 1:
				scale.Y = ln
			case 2:
				scale.Z = ln
			}
		}
		scales[i] = scale

		var rot [4]float64
		for k, name := range []string{"rot_0", "rot_1", "rot_2", "rot_3"} {
			v, err := readFloat(rec, name)
			if err != nil {
				return err
			}
			rot[k] = v
		}
		// Stored (w, x, y, z); array order is (x, y, z, w).
		quats[i] = spark.NewQuat(rot[1], rot[2], rot[3], rot[0]).Normalize()

		op, err := readFloat(rec, "opacity")
		if err != nil {
			return err
		}
		opacities[i] = 1 / (1 + math.Exp(-op))

		var dc [3]float64
		for c, name := range []string{"f_dc_0", "f_dc_1", "f_dc_2"} {
			v, err := readFloat(rec, name)
			if err != nil {
				return err
			}
			dc[c] = v
		}
		rgbs[i] = spark.V3(0.5+dc[0]*splatSHC0, 0.5+dc[1]*splatSHC0, 0.5+dc[2]*splatSHC0)

		if layout.shDegree >= 1 {
			var c splat.SH1Coeffs
			if err := readFRest(rec, layout, 1, c[:]); err != nil {
				return err
			}
			sh1[i] = c
		}
		if layout.shDegree >= 2 {
			var c splat.SH2Coeffs
			if err := readFRest(rec, layout, 2, c[:]); err != nil {
				return err
			}
			sh2[i] = c
		}
		if layout.shDegree >= 3 {
			var c splat.SH3Coeffs
			if err := readFRest(rec, layout, 3, c[:]); err != nil {
				return err
			}
			sh3[i] = c
		}
	}

	if err := d.dst.SetCenter(0, centers); err != nil {
		return err
	}
	if err := d.dst.SetOpacity(0, opacities); err != nil {
		return err
	}
	if err := d.dst.SetRGB(0, rgbs); err != nil {
		return err
	}
	if err := d.dst.SetScale(0, scales); err != nil {
		return err
	}
	if err := d.dst.SetQuat(0, quats); err != nil {
		return err
	}
	if sh1 != nil {
		if err := d.dst.SetSH1(0, sh1); err != nil {
			return err
		}
	}
	if sh2 != nil {
		if err := d.dst.SetSH2(0, sh2); err != nil {
			return err
		}
	}
	if sh3 != nil {
		if err := d.dst.SetSH3(0, sh3); err != nil {
			return err
		}
	}
	return d.dst.Finish()
}

// splatSHC0 mirrors codec.SHC0 without importing the codec package (kept
// independent since format and codec are siblings consumed by different
// layers; the constant itself is part of the PLY/SPZ wire convention, not
// codec's bit-packing machinery).
const splatSHC0 = 0.282094

// readFRest reads the `degree` SH band's per-channel coefficients out of
// rec's f_rest_* properties, stride-by-channel (spec §4.5).
func readFRest(rec []byte, layout *plyLayout, degree int, out []float64) error {
	stride := layout.fields["__f_rest_stride__"].offset // see parsePlyHeader
	base := shOffset(degree - 1)
	count := shOffset(degree) - shOffset(degree-1)
	for ch := 0; ch < 3; ch++ {
		for k := 0; k < count; k++ {
			name := "f_rest_" + strconv.Itoa(ch*stride+base+k)
			f, ok := layout.fields[name]
			if !ok {
				return errMalformedf("ply: missing %s for SH band %d", name, degree)
			}
			out[ch*count+k] = float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[f.offset:])))
		}
	}
	return nil
}

func parsePlyHeader(header string) (*plyLayout, error) {
	lines := strings.Split(header, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != "ply" {
		return nil, errMalformedf("ply: missing 'ply' magic line")
	}

	layout := &plyLayout{fields: make(map[string]plyField)}
	sawFormat := false
	numVertices := -1
	offset := 0
	restCount := 0

	for _, raw := range lines[1:] {
		line := strings.TrimRight(raw, "\r")
		if line == "" || line == "end_header" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) != 3 || fields[1] != "binary_little_endian" || fields[2] != "1.0" {
				return nil, errUnsupportedf("ply: unsupported format %q", line)
			}
			sawFormat = true
		case "comment", "obj_info":
			continue
		case "element":
			if len(fields) != 3 || fields[1] != "vertex" {
				return nil, errUnsupportedf("ply: unsupported element %q", line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, errMalformedf("ply: bad vertex count %q", fields[2])
			}
			numVertices = n
		case "property":
			if len(fields) != 3 {
				return nil, errMalformedf("ply: malformed property line %q", line)
			}
			var typ plyPropType
			switch fields[1] {
			case "float":
				typ = plyFloat
			case "uchar":
				typ = plyUChar
			default:
				return nil, errUnsupportedf("ply: unsupported property type %q", fields[1])
			}
			name := fields[2]
			layout.fields[name] = plyField{typ: typ, offset: offset}
			offset += typ.size()
			if strings.HasPrefix(name, "f_rest_") {
				restCount++
			}
		default:
			return nil, errMalformedf("ply: unrecognized header line %q", line)
		}
	}

	if !sawFormat {
		return nil, errMalformedf("ply: missing format line")
	}
	if numVertices < 0 {
		return nil, errMalformedf("ply: missing vertex element")
	}
	for _, name := range []string{"x", "y", "z", "scale_0", "scale_1", "scale_2",
		"rot_0", "rot_1", "rot_2", "rot_3", "opacity", "f_dc_0", "f_dc_1", "f_dc_2"} {
		if _, ok := layout.fields[name]; !ok {
			return nil, errMalformedf("ply: missing required property %q", name)
		}
	}
	degree, err := shDegreeFromRestCount(restCount)
	if err != nil {
		return nil, err
	}
	layout.stride = offset
	layout.numVertices = numVertices
	layout.shDegree = degree
	if degree > 0 {
		layout.fields["__f_rest_stride__"] = plyField{offset: restCount / 3}
	}
	return layout, nil
}
