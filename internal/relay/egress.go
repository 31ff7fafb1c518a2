package relay

import (
	"errors"
	"log/slog"

	"github.com/flowpbx/voxrelay/internal/wire"
)

// runEgress is the per-client Egress Sender: wait for a frame or
// deactivation, pop the queue front (FIFO), and write_frame it to the
// socket. A write failure deactivates the entry and ends the loop;
// deactivation by any other party clears the queue, so the loop ends at
// its next wait without sending the frames that were still buffered.
func runEgress(entry *ClientEntry, logger *slog.Logger, onDone func()) {
	defer entry.wg.Done()
	defer onDone()

	log := logger.With("subsystem", "egress", "client_id", entry.ID)

	for {
		frame, ok := entry.queue.popWait()
		if !ok {
			return
		}

		if err := wire.WriteFrame(entry.conn, frame); err != nil {
			switch {
			case errors.Is(err, wire.ErrTransportClosed):
				log.Debug("client disconnected on write")
			default:
				log.Warn("transport error on write", "error", err)
			}
			if entry.deactivate() {
				entry.teardown()
			}
			return
		}
	}
}
