/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLog struct{ t *testing.T }

func (l testLog) Infof(format string, args ...interface{}) { l.t.Logf(format, args...) }
func (l testLog) Warnf(format string, args ...interface{}) { l.t.Logf(format, args...) }

func TestRunOnceSuccess(t *testing.T) {
	s := New(testLog{t})
	err := s.RunOnce("/bin/true")
	assert.NoError(t, err)
}

func TestRunOnceFailure(t *testing.T) {
	s := New(testLog{t})
	err := s.RunOnce("/bin/false")
	assert.Error(t, err)
}

func TestRunOnceRejectsNonExecutable(t *testing.T) {
	s := New(testLog{t})
	err := s.RunOnce("/etc/hostname")
	assert.Error(t, err)
}

func TestRunOnceRejectsMissingFile(t *testing.T) {
	s := New(testLog{t})
	err := s.RunOnce("/no/such/binary")
	assert.Error(t, err)
}

func TestSpawnAndPoll(t *testing.T) {
	s := New(testLog{t})
	c, err := s.Spawn("/bin/sleep", "0.05")
	require.NoError(t, err)
	assert.Greater(t, c.PID(), 0)

	assert.False(t, c.Poll())
	time.Sleep(150 * time.Millisecond)
	assert.True(t, c.Poll())
}

func TestSpawnAndTerminate(t *testing.T) {
	s := New(testLog{t})
	c, err := s.Spawn("/bin/sleep", "5")
	require.NoError(t, err)

	err = c.Terminate(time.Second)
	assert.NoError(t, err)
}
