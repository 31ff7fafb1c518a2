// Command voxrelay-client connects to a voxrelay-server, streams audio
// frames to it, and reads the mixed result back. Capture and playback
// devices are external collaborators; this binary only implements the
// framing-level contract and CLI shape. No capture or playback device is
// attached: in every mode it sends a silent frame every 20ms and discards
// received frames. The optional positional argument "test" is accepted
// and reported in the startup log line; it does not otherwise change
// what the client does.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/flowpbx/voxrelay/internal/relay"
	"github.com/flowpbx/voxrelay/internal/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := ":9797"
	if v := os.Getenv("VOXRELAY_SERVER_ADDR"); v != "" {
		addr = v
	}

	frameBytes := relay.CanonicalFrameBytes
	if v := os.Getenv("VOXRELAY_FRAME_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			frameBytes = n
		}
	}

	testMode := len(os.Args) > 1 && os.Args[1] == "test"

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connecting to %s: %v\n", addr, err)
		return 1
	}
	defer conn.Close()

	logger.Info("connected", "addr", addr, "test_mode", testMode, "frame_bytes", frameBytes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	go func() {
		errCh <- sendFrames(ctx, conn, frameBytes)
	}()
	go func() {
		errCh <- receiveFrames(ctx, conn, testMode)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("connection ended", "error", err)
		}
	}

	conn.Close()
	return 0
}

// sendFrames emits a silent frame of frameBytes every 20ms, standing in
// for a microphone capture device. In a real deployment this would be
// replaced with frames pulled from the platform capture API, which is
// outside this program's scope.
func sendFrames(ctx context.Context, conn net.Conn, frameBytes int) error {
	silence := make([]byte, frameBytes)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := wire.WriteFrame(conn, silence); err != nil {
				return err
			}
		}
	}
}

// receiveFrames reads mixed frames from the server and discards them;
// no playback device is attached in either mode.
func receiveFrames(ctx context.Context, conn net.Conn, testMode bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return err
		}

		if !testMode {
			// A real client would hand frame to a playback device here;
			// that device is an external collaborator outside this
			// program's scope.
			_ = frame
		}
	}
}
