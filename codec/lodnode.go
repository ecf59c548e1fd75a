package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// LodNodeSize is the encoded size of one LoD wire-format node: 3x f16
// center, f16 size, u16 child_count, u16 pad, u32 child_start (spec §4.1,
// §6 "LoD-node wire format").
const LodNodeSize = 16

// LodNode is the decoded form of a wire-format LoD node.
type LodNode struct {
	Center     spark.Vec3
	Size       float64
	ChildCount uint16
	ChildStart uint32
}

// NodeSize returns the wire-format "size" field for a node with the given
// opacity and per-axis scale: `2 * max(1, opacity) * max(scale)` (spec §6).
func NodeSize(opacity float64, scale spark.Vec3) float64 {
	o := opacity
	if o < 1 {
		o = 1
	}
	return 2 * o * scale.MaxComponent()
}

// EncodeLodNode appends the 16-byte wire form of n to dst.
func EncodeLodNode(dst []byte, n LodNode) []byte {
	var buf [LodNodeSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], float64ToF16(n.Center.X))
	binary.LittleEndian.PutUint16(buf[2:4], float64ToF16(n.Center.Y))
	binary.LittleEndian.PutUint16(buf[4:6], float64ToF16(n.Center.Z))
	binary.LittleEndian.PutUint16(buf[6:8], float64ToF16(n.Size))
	binary.LittleEndian.PutUint16(buf[8:10], n.ChildCount)
	binary.LittleEndian.PutUint16(buf[10:12], 0) // pad
	binary.LittleEndian.PutUint32(buf[12:16], n.ChildStart)
	return append(dst, buf[:]...)
}

// DecodeLodNode reads one 16-byte LoD node from the front of b.
func DecodeLodNode(b []byte) (LodNode, error) {
	if len(b) < LodNodeSize {
		return LodNode{}, errors.Wrap(spark.ErrMalformed, "codec: truncated LoD node")
	}
	return LodNode{
		Center: spark.V3(
			f16ToFloat64(binary.LittleEndian.Uint16(b[0:2])),
			f16ToFloat64(binary.LittleEndian.Uint16(b[2:4])),
			f16ToFloat64(binary.LittleEndian.Uint16(b[4:6])),
		),
		Size:       f16ToFloat64(binary.LittleEndian.Uint16(b[6:8])),
		ChildCount: binary.LittleEndian.Uint16(b[8:10]),
		ChildStart: binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}
