// Package spark implements the core data model, codecs, and level-of-detail
// machinery for streaming 3D Gaussian-splat scenes.
//
// # Overview
//
// A Gaussian splat is an oriented anisotropic 3D Gaussian carrying a
// position, opacity, linear color (optionally view-dependent via spherical
// harmonics), scale, and orientation. spark ingests these from several
// binary container formats, merges them bottom-up into a level-of-detail
// (LoD) tree, and walks that tree at runtime to select a budgeted,
// foveation-weighted subset of nodes per frame.
//
// # Package layout
//
//   - spark (this package): shared math (Vec3, Quat, SymMat3), Morton
//     ordering, logging, and error kinds used by every other package.
//   - spark/splat: the canonical in-memory GsplatArray and its
//     Receiver/Getter push/pull interfaces.
//   - spark/codec: field-level quantizers (centers, colors, scales,
//     quaternions, spherical harmonics, LoD nodes).
//   - spark/format: the PLY, SPZ, KSPLAT, and AntiSplat container codecs,
//     plus MultiDecoder format sniffing.
//   - spark/lod: the bottom-up "quick-LoD" tree builder.
//   - spark/traversal: the process-wide LoD tree registry and per-frame
//     frontier walk.
//
// # Scope
//
// Rendering, mesh I/O, and lossless re-encoding are out of scope: every
// codec here is a lossy quantizer with documented tolerances.
package spark
