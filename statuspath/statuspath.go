// Package statuspath is an external collaborator (SPEC_FULL.md §4.N, NOT
// part of the storage contract): it locates the broker's status/socket
// file next to a store directory, and optionally probes the broker's
// health endpoint over QUIC if one is configured. pstore itself never
// calls Probe; it exists for a toolchain front-end that opens a Database
// and also wants to know whether the broker that manages it is alive.
package statuspath

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	quic "github.com/quic-go/quic-go"
)

// statusFileName is the fixed name of the broker's status file within a
// store directory, mirroring the store file's own fixed layout (spec.md
// §6: one well-known name, not configurable per deployment).
const statusFileName = "broker.status"

// Locate returns the path to the broker's status file inside dir, the
// directory containing the store file. It does not require the file to
// exist yet — a broker may not have started — only that dir itself does.
func Locate(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}

	if !info.IsDir() {
		return "", fmt.Errorf("statuspath: %s is not a directory", dir)
	}

	return filepath.Join(dir, statusFileName), nil
}

// Probe dials addr's QUIC health endpoint and reports whether the broker
// answered. It is strictly optional: a broker that exposes no QUIC
// endpoint simply never has Probe called against it; pstore's own
// read/write path never depends on the result.
func Probe(ctx context.Context, addr string) (bool, error) {
	// Status probes target a broker on the same host/namespace as the
	// store directory; there is no CA to verify against, only reachability.
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		NextProtos:         []string{"pstore-status"},
		InsecureSkipVerify: true,
	}

	conn, err := quic.DialAddr(ctx, addr, tlsCfg, nil)
	if err != nil {
		return false, err
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	if _, err := stream.Write([]byte("ping")); err != nil {
		return false, err
	}

	buf := make([]byte, 4)
	if _, err := stream.Read(buf); err != nil {
		return false, err
	}

	return string(buf) == "pong", nil
}
