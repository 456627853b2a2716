/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package rssi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanUndefinedUntilFull(t *testing.T) {
	w := NewWindow()
	for _, s := range []int{-90, -92, -95} {
		w.Add(s)
		_, full := w.Mean()
		assert.False(t, full)
	}
}

func TestMeanOnceFull(t *testing.T) {
	w := NewWindow()
	for _, s := range []int{-90, -92, -95, -91} {
		w.Add(s)
	}
	mean, full := w.Mean()
	assert.True(t, full)
	assert.Equal(t, (-90-92-95-91)/4, mean)
}

func TestCriticalPoint(t *testing.T) {
	w := NewWindow()
	for _, s := range []int{5, 6, 7, 8} {
		w.Add(s)
	}
	mean, _ := w.Mean()
	assert.Equal(t, 6, mean)
	assert.True(t, w.Critical())
}

func TestResetClearsWindow(t *testing.T) {
	w := NewWindow()
	for _, s := range []int{1, 2, 3, 4} {
		w.Add(s)
	}
	require := w.Full()
	assert.True(t, require)
	w.Reset()
	assert.False(t, w.Full())
}

func TestOverwriteOldestSample(t *testing.T) {
	w := NewWindow()
	for _, s := range []int{1, 2, 3, 4, 100} {
		w.Add(s)
	}
	mean, full := w.Mean()
	assert.True(t, full)
	assert.Equal(t, (2+3+4+100)/4, mean)
}
