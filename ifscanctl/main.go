/*
 * COPYRIGHT 2020 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Command ifscanctl is the unprivileged control-socket client: it
// joins its arguments into one command line, sends it to the named
// interface's ifscand, and prints the reply.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"ifscand/control"
)

const pname = "ifscanctl"

var runtimeDir = pflag.String("runtime-dir", "/var/run/ifscand", "directory holding the control socket")

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <ifname> <command...>\n", pname)
}

func main() {
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	ifname := args[0]
	line := strings.Join(args[1:], " ")

	reply, err := send(*runtimeDir, ifname, line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", pname, err)
		os.Exit(1)
	}
	fmt.Println(reply)
}

// send binds an ephemeral client socket, sends line to ifname's
// control socket, and returns the single response datagram.
func send(runtimeDir, ifname, line string) (string, error) {
	serverPath := control.SocketPath(runtimeDir, ifname)
	serverAddr, err := net.ResolveUnixAddr("unixgram", serverPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", serverPath, err)
	}

	clientPath := fmt.Sprintf("/tmp/%s.%d.sock", pname, os.Getpid())
	clientAddr, err := net.ResolveUnixAddr("unixgram", clientPath)
	if err != nil {
		return "", fmt.Errorf("resolving client address: %w", err)
	}

	conn, err := net.ListenUnixgram("unixgram", clientAddr)
	if err != nil {
		return "", fmt.Errorf("binding client socket: %w", err)
	}
	defer conn.Close()
	defer os.Remove(clientPath)

	if _, err := conn.WriteToUnix([]byte(line), serverAddr); err != nil {
		return "", fmt.Errorf("sending to %s: %w", serverPath, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return "", fmt.Errorf("setting read deadline: %w", err)
	}

	buf := make([]byte, 65536)
	n, err := conn.Read(buf)
	if err != nil {
		return "", fmt.Errorf("reading reply from %s: %w", serverPath, err)
	}

	reply := string(buf[:n])
	if strings.HasPrefix(reply, "ERROR:") {
		return "", fmt.Errorf("%s", strings.TrimPrefix(reply, "ERROR: "))
	}
	return reply, nil
}
