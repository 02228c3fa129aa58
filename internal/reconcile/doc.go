// Package reconcile converts between the three coordinate spaces a
// suggestion passes through on its way to the screen:
//
//   - plain offsets: rune indices into a block's de-tagged text, the space
//     backends report in;
//   - rich offsets: byte indices into the block's tagged markup, the space
//     corrections are applied in;
//   - visual ranges: rectangles over rendered runs, the space overlays are
//     drawn in and pointers arrive from.
//
// Every function is a pure function of its arguments. Nothing here holds
// state between calls, so conversions for different blocks may run
// concurrently.
//
// A block's rendering is described as an ordered sequence of Runs, each a
// contiguous piece of text together with the path of elements enclosing it.
// Geometry comes from a Measurer supplied by the renderer.
package reconcile
