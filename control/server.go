/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package control

import (
	"fmt"
	"net"
	"os"
	"time"
)

// Logger is the narrow logging surface the control server needs.
type Logger interface {
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// SocketPath derives the per-interface control socket path, under
// runtimeDir, from the interface name.
func SocketPath(runtimeDir, iface string) string {
	return fmt.Sprintf("%s/ifscand.%s", runtimeDir, iface)
}

// Server owns the listening UNIX datagram socket for one interface.
type Server struct {
	conn    *net.UnixConn
	path    string
	handler *Handler
	log     Logger
}

// Listen creates (removing any stale socket file first) a UNIX
// datagram socket at path, mode 0660.
func Listen(path string, handler *Handler, log Logger) (*Server, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("control: resolving %s: %w", path, err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("control: listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0660); err != nil {
		conn.Close()
		return nil, fmt.Errorf("control: chmod %s: %w", path, err)
	}

	return &Server{conn: conn, path: path, handler: handler, log: log}, nil
}

// Close shuts down the socket and removes the socket file.
func (s *Server) Close() error {
	err := s.conn.Close()
	_ = os.Remove(s.path)
	return err
}

// SetDeadline bounds how long ServeOne's read blocks, so the main
// loop's single-threaded event loop can still observe its own tick
// timer: ServeOne returns a timeout error when nothing arrives within
// the deadline, and the caller treats that as "no command this tick".
func (s *Server) SetDeadline(d time.Duration) error {
	return s.conn.SetReadDeadline(time.Now().Add(d))
}

// ServeOne reads a single datagram (if any arrives before the
// deadline set by SetDeadline), dispatches it, and writes back
// exactly one response datagram. It returns (false, err) on a read
// timeout (err satisfies net.Error's Timeout() == true), which
// callers should treat as "no command this tick" rather than a
// failure.
func (s *Server) ServeOne(buf []byte) (handled bool, err error) {
	n, from, err := s.conn.ReadFromUnix(buf)
	if err != nil {
		return false, err
	}

	line := string(buf[:n])
	reply, cmdErr := s.handler.Dispatch(line)

	var resp string
	if cmdErr != nil {
		resp = "ERROR: " + cmdErr.Error()
	} else if reply != "" {
		resp = reply
	} else {
		resp = "OK"
	}

	if from != nil {
		if _, err := s.conn.WriteToUnix([]byte(resp), from); err != nil {
			s.log.Warnf("control: writing response to %s: %v", from, err)
		}
	}
	return true, nil
}
