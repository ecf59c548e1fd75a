package format

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"strings"

	"github.com/sparkjsdev/spark/splat"
)

// SplatFileType names one of the formats MultiDecoder can detect and
// dispatch to (spec §4.5 "MultiDecoder").
type SplatFileType int

const (
	FileTypePLY SplatFileType = iota
	FileTypeSPZ
	FileTypeKsplat
	FileTypeAntisplat
)

func (t SplatFileType) String() string {
	switch t {
	case FileTypePLY:
		return "ply"
	case FileTypeSPZ:
		return "spz"
	case FileTypeKsplat:
		return "ksplat"
	case FileTypeAntisplat:
		return "splat"
	default:
		return "unknown"
	}
}

// FileTypeFromExtension maps a lowercase, dot-less file extension to a
// SplatFileType, or reports false if unrecognized.
func FileTypeFromExtension(ext string) (SplatFileType, bool) {
	switch strings.ToLower(ext) {
	case "ply":
		return FileTypePLY, true
	case "spz":
		return FileTypeSPZ, true
	case "ksplat":
		return FileTypeKsplat, true
	case "splat":
		return FileTypeAntisplat, true
	default:
		return 0, false
	}
}

// FileTypeFromPathname extracts the extension from pathname and resolves
// it via FileTypeFromExtension.
func FileTypeFromPathname(pathname string) (SplatFileType, bool) {
	idx := strings.LastIndexByte(pathname, '.')
	if idx < 0 || idx == len(pathname)-1 {
		return 0, false
	}
	return FileTypeFromExtension(pathname[idx+1:])
}

const (
	plyMagicLE  uint32 = 0x00796c70 // "ply" (first 3 bytes, little-endian, masked)
	gzipMagicLE uint32 = 0x00088b1f
	magicMask          = 0x00ffffff
)

func newFormatDecoder(fileType SplatFileType, dst splat.Receiver) ChunkDecoder {
	switch fileType {
	case FileTypePLY:
		return NewPlyDecoder(dst)
	case FileTypeSPZ:
		return NewSpzDecoder(dst)
	case FileTypeKsplat:
		return NewKsplatDecoder(dst)
	case FileTypeAntisplat:
		return NewAntisplatDecoder(dst)
	default:
		return nil
	}
}

// MultiDecoder sniffs which format a stream is in (by magic, gzip-unwrapped
// magic, or path-name extension) and dispatches to the matching decoder,
// replaying the buffered detection prefix through it (spec §4.5
// "MultiDecoder").
type MultiDecoder struct {
	dst      splat.Receiver
	pathname string

	fileType *SplatFileType
	inner    ChunkDecoder
	buf      bytes.Buffer
}

// NewMultiDecoder returns a decoder that emits into dst once it has
// sniffed the stream's format. pathname, if non-empty, is used as a
// fallback when magic sniffing is inconclusive (spec §4.5).
func NewMultiDecoder(dst splat.Receiver, pathname string) *MultiDecoder {
	return &MultiDecoder{dst: dst, pathname: pathname}
}

// Push feeds bytes to the decoder. Until the format is known, bytes are
// buffered and format detection is re-attempted on every call.
func (d *MultiDecoder) Push(data []byte) error {
	if d.fileType != nil {
		return d.inner.Push(data)
	}

	d.buf.Write(data)
	raw := d.buf.Bytes()
	if len(raw) < 4 {
		return nil
	}

	magic := binary.LittleEndian.Uint32(raw[0:4])
	switch {
	case magic&magicMask == plyMagicLE:
		return d.commit(FileTypePLY)
	case magic&magicMask == gzipMagicLE:
		decompressed, needMore, err := peekGzipPrefix(raw, 4)
		if err != nil {
			return d.fallbackToPathname()
		}
		if needMore {
			return nil
		}
		if len(decompressed) >= 4 && binary.LittleEndian.Uint32(decompressed[0:4]) == spzMagic {
			return d.commit(FileTypeSPZ)
		}
		return d.fallbackToPathname()
	default:
		return d.fallbackToPathname()
	}
}

func (d *MultiDecoder) fallbackToPathname() error {
	if d.pathname == "" {
		return errMalformedf("multidecoder: unknown file type (no magic match, no pathname)")
	}
	fileType, ok := FileTypeFromPathname(d.pathname)
	if !ok {
		return errMalformedf("multidecoder: unknown file type for pathname %q", d.pathname)
	}
	return d.commit(fileType)
}

func (d *MultiDecoder) commit(fileType SplatFileType) error {
	d.fileType = &fileType
	d.inner = newFormatDecoder(fileType, d.dst)
	buffered := d.buf.Bytes()
	err := d.inner.Push(buffered)
	d.buf.Reset()
	return err
}

// Finish completes detection (if necessary, using only the path-name
// fallback since no more bytes are coming) and finalizes the inner decoder.
func (d *MultiDecoder) Finish() error {
	if d.fileType == nil {
		if err := d.fallbackToPathname(); err != nil {
			return err
		}
	}
	return d.inner.Finish()
}

// peekGzipPrefix attempts to decompress up to maxBytes from a gzip stream
// whose header and at least maxBytes of deflate output are available. It
// reports needMore=true if raw doesn't yet contain a complete gzip member
// header or enough compressed data to produce maxBytes of output.
func peekGzipPrefix(raw []byte, maxBytes int) (decompressed []byte, needMore bool, err error) {
	if len(raw) < 10 {
		return nil, true, nil
	}
	if raw[0] != 0x1f || raw[1] != 0x8b || raw[2] != 8 {
		return nil, false, errMalformedf("multidecoder: invalid gzip header")
	}

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, true, nil
		}
		return nil, false, err
	}
	defer gr.Close()

	out := make([]byte, maxBytes)
	n, err := io.ReadFull(gr, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false, err
	}
	if n < maxBytes {
		return nil, true, nil
	}
	return out[:n], false, nil
}
