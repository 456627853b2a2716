/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package rssi implements the sliding-window RSSI estimator: a small
// fixed-capacity ring buffer and the mean/critical-point logic the
// scheduler uses to decide when a link has gone bad enough to warrant
// a rescan.
package rssi

// WindowSize is the number of samples averaged.
const WindowSize = 4

// LowThreshold is the mean below which the scheduler treats the link
// as a critical point.
const LowThreshold = 8

// Window is a fixed-capacity circular buffer of the last WindowSize
// RSSI samples.
type Window struct {
	samples [WindowSize]int
	next    int
	filled  int
}

// NewWindow returns an empty estimator window.
func NewWindow() *Window {
	return &Window{}
}

// Add records a new sample, overwriting the oldest once the window is
// full.
func (w *Window) Add(sample int) {
	w.samples[w.next] = sample
	w.next = (w.next + 1) % WindowSize
	if w.filled < WindowSize {
		w.filled++
	}
}

// Reset empties the window, as happens on a fresh association.
func (w *Window) Reset() {
	*w = Window{}
}

// Full reports whether WindowSize samples have been added since the
// last Reset.
func (w *Window) Full() bool {
	return w.filled == WindowSize
}

// Mean returns the arithmetic mean of the window's samples and true
// once the window is full; before that, (0, false) since the mean
// isn't yet meaningful.
func (w *Window) Mean() (int, bool) {
	if !w.Full() {
		return 0, false
	}
	sum := 0
	for _, s := range w.samples {
		sum += s
	}
	return sum / WindowSize, true
}

// Critical reports whether the window is full and its mean has
// dropped below LowThreshold -- the scheduler's signal to rescan.
func (w *Window) Critical() bool {
	mean, full := w.Mean()
	return full && mean < LowThreshold
}
