/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package aplog is the ambient logging stack: a zap sugared logger
// configured the way ap_common/aputil/logging.go's NewLogger builds
// one (custom timestamp/caller encoders, a dynamically adjustable
// level), writing either to stderr in the foreground or to syslog
// (facility DAEMON, via github.com/schahn/srslog -- the same library
// ap.logd's syslog.go dials) once daemonized.
package aplog

import (
	"fmt"
	"path/filepath"
	"time"

	srslog "github.com/schahn/srslog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var atomicLevel = zap.NewAtomicLevel()

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006/01/02 15:04:05.000"))
}

func callerEncoder(iface string) func(zapcore.EntryCaller, zapcore.PrimitiveArrayEncoder) {
	return func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("ifscand.%s:%s:%d", iface, filepath.Base(caller.File), caller.Line))
	}
}

func encoderConfig(iface string) zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = timeEncoder
	cfg.EncodeCaller = callerEncoder(iface)
	return cfg
}

// New returns a sugared logger tagged with the interface name, logging
// to stderr. Used when -f/--foreground is given.
func New(iface string, debug bool) *zap.SugaredLogger {
	if debug {
		atomicLevel.SetLevel(zapcore.DebugLevel)
	} else {
		atomicLevel.SetLevel(zapcore.InfoLevel)
	}

	cfg := zap.Config{
		Level:             atomicLevel,
		Development:       true,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     encoderConfig(iface),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		// Logging isn't available yet; this is the one place aplog
		// may panic, since without it nothing downstream can report
		// failure sanely.
		panic(fmt.Sprintf("aplog: building logger: %v", err))
	}
	return logger.Sugar()
}

// syslogWriter adapts an *srslog.Writer to zapcore.WriteSyncer.
type syslogWriter struct {
	w *srslog.Writer
}

func (s syslogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if err := s.w.Notice(msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s syslogWriter) Sync() error { return nil }

// NewSyslog returns a sugared logger tagged with the interface name,
// writing to the local syslog daemon under facility DAEMON and tag
// "ifscand.<iface>". Used when -f/--foreground is not given; the
// process does not detach from its controlling terminal either way.
func NewSyslog(iface string, debug bool) (*zap.SugaredLogger, error) {
	if debug {
		atomicLevel.SetLevel(zapcore.DebugLevel)
	} else {
		atomicLevel.SetLevel(zapcore.InfoLevel)
	}

	w, err := srslog.New(srslog.LOG_DAEMON|srslog.LOG_INFO, "ifscand."+iface)
	if err != nil {
		return nil, fmt.Errorf("aplog: dialing syslog: %w", err)
	}

	enc := zapcore.NewConsoleEncoder(encoderConfig(iface))
	core := zapcore.NewCore(enc, syslogWriter{w: w}, atomicLevel)
	logger := zap.New(core)
	return logger.Sugar(), nil
}

// SetLevel adjusts the dynamic log level at runtime, e.g. in response
// to a control-socket command or a signal.
func SetLevel(level string) error {
	var l zapcore.Level
	if err := (&l).UnmarshalText([]byte(level)); err != nil {
		return err
	}
	atomicLevel.SetLevel(l)
	return nil
}
