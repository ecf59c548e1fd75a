// Package format implements the splat file codecs: PLY, SPZ, KSPLAT, and
// AntiSplat decoders/encoders, plus a MultiDecoder that sniffs which one
// applies (spec §4.5).
//
// Every decoder here is a chunk receiver: Push accepts a byte slice and
// buffers it, Finish parses the complete buffered stream and emits the
// result into an inner splat.Receiver. The external interface these
// decoders serve (the build-lod CLI, spec §6) always hands over a whole
// file rather than a live network stream, so buffering the full input
// before parsing is the natural match for actual usage rather than a
// compromise; the one place genuine incremental behavior matters is
// MultiDecoder's format sniff, which must commit to a format after only a
// handful of bytes and replay the buffered prefix through the chosen
// decoder.
package format

import (
	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// ChunkDecoder is the common shape every format decoder implements (spec
// §4.5 "chunk receiver").
type ChunkDecoder interface {
	Push(data []byte) error
	Finish() error
}

func errMalformedf(format string, args ...any) error {
	return errors.Wrapf(spark.ErrMalformed, format, args...)
}

func errUnsupportedf(format string, args ...any) error {
	return errors.Wrapf(spark.ErrUnsupported, format, args...)
}

func errResourceLimitf(format string, args ...any) error {
	return errors.Wrapf(spark.ErrResourceLimit, format, args...)
}
