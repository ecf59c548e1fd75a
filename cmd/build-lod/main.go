// Command build-lod reads one or more splat files, builds a LoD tree over
// each, and re-emits SPZ output (spec §6 "CLI (build-lod)").
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/format"
	"github.com/sparkjsdev/spark/lod"
	"github.com/sparkjsdev/spark/splat"
)

// defaultLodBase is the example value spec §5 gives for lod_base.
const defaultLodBase = 1.5

func main() {
	var (
		maxSH         = flag.Int("max-sh", 3, "cap SH bands re-emitted (0-3)")
		chunked       = flag.Bool("chunked", false, "emit one output per 65536-splat chunk")
		mergeFilter   = flag.Bool("merge-filter", true, "apply the low-pass covariance term during merge")
		noMergeFilter = flag.Bool("no-merge-filter", false, "disable --merge-filter")
		unlod         = flag.Bool("unlod", false, "drop every splat with children and re-emit a flat file")
	)
	flag.Parse()

	if *maxSH < 0 || *maxSH > 3 {
		log.Fatalf("build-lod: --max-sh must be 0-3, got %d", *maxSH)
	}
	effectiveMergeFilter := *mergeFilter && !*noMergeFilter

	exitCode := 0
	for _, path := range flag.Args() {
		if err := processFile(path, *maxSH, *chunked, effectiveMergeFilter, *unlod); err != nil {
			fmt.Fprintf(os.Stderr, "build-lod: %s: %v\n", path, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func processFile(path string, maxSH int, chunked, mergeFilter, unlod bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	a := splat.New()
	dec := format.NewMultiDecoder(a, path)
	if err := dec.Push(raw); err != nil {
		return err
	}
	if err := dec.Finish(); err != nil {
		return err
	}

	if !unlod {
		if err := lod.BuildLodTree(a, defaultLodBase, mergeFilter); err != nil {
			return err
		}
	} else if a.HasLodTree() {
		a.Retain(func(i int) bool { return a.Extras[i].ChildCount == 0 })
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if !chunked {
		return writeSpz(a, maxSH, base+".spz")
	}

	const chunkSize = 65536
	for start, chunk := 0, 0; start < a.NumSplats(); start, chunk = start+chunkSize, chunk+1 {
		end := start + chunkSize
		if end > a.NumSplats() {
			end = a.NumSplats()
		}
		view := rangeGetter{Getter: a, start: start, count: end - start}
		if err := writeSpz(view, maxSH, fmt.Sprintf("%s-%d.spz", base, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func writeSpz(a splat.Getter, maxSH int, outPath string) error {
	var src splat.Getter = a
	if maxSH < a.MaxSHDegree() {
		src = shCappedGetter{Getter: a, maxSH: maxSH}
	}
	out, err := format.EncodeSpz(src, 12)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s (%d splats)\n", outPath, a.NumSplats())
	return nil
}

// rangeGetter presents [start, start+count) of an underlying Getter as its
// own zero-based splat range, for per-chunk output without copying the
// array.
type rangeGetter struct {
	splat.Getter
	start, count int
}

func (g rangeGetter) NumSplats() int { return g.count }

func (g rangeGetter) GetCenter(base, count int) ([]spark.Vec3, error) {
	return g.Getter.GetCenter(g.start+base, count)
}
func (g rangeGetter) GetOpacity(base, count int) ([]float64, error) {
	return g.Getter.GetOpacity(g.start+base, count)
}
func (g rangeGetter) GetRGB(base, count int) ([]spark.Vec3, error) {
	return g.Getter.GetRGB(g.start+base, count)
}
func (g rangeGetter) GetScale(base, count int) ([]spark.Vec3, error) {
	return g.Getter.GetScale(g.start+base, count)
}
func (g rangeGetter) GetQuat(base, count int) ([]spark.Quat, error) {
	return g.Getter.GetQuat(g.start+base, count)
}
func (g rangeGetter) GetSH1(base, count int) ([]splat.SH1Coeffs, error) {
	return g.Getter.GetSH1(g.start+base, count)
}
func (g rangeGetter) GetSH2(base, count int) ([]splat.SH2Coeffs, error) {
	return g.Getter.GetSH2(g.start+base, count)
}
func (g rangeGetter) GetSH3(base, count int) ([]splat.SH3Coeffs, error) {
	return g.Getter.GetSH3(g.start+base, count)
}
func (g rangeGetter) GetChildCount(base, count int) ([]uint16, error) {
	return g.Getter.GetChildCount(g.start+base, count)
}
func (g rangeGetter) GetChildStart(base, count int) ([]uint32, error) {
	return g.Getter.GetChildStart(g.start+base, count)
}

// shCappedGetter reports a lower MaxSHDegree than the wrapped array
// actually holds, so encoders that size their SH output off
// MaxSHDegree re-emit fewer bands without needing a copy of the array.
type shCappedGetter struct {
	splat.Getter
	maxSH int
}

func (g shCappedGetter) MaxSHDegree() int { return g.maxSH }
