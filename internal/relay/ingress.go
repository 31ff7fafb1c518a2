package relay

import (
	"errors"
	"log/slog"

	"github.com/flowpbx/voxrelay/internal/wire"
)

// runIngress is the per-client Ingress Reader: read_frame in a loop,
// depositing each successfully decoded frame into the mixer inbox. It
// never broadcasts directly — the inbox decouples the read path from
// mixing so near-simultaneous frames collapse into a single cycle. On
// any failure it tears the entry down, a no-op if some other party
// (the egress sender, or shutdown) already did.
func runIngress(entry *ClientEntry, mixer *Mixer, registry *Registry, logger *slog.Logger, onDone func()) {
	defer entry.wg.Done()
	defer onDone()

	log := logger.With("subsystem", "ingress", "client_id", entry.ID)

	for {
		frame, err := wire.ReadFrame(entry.conn)
		if err != nil {
			switch {
			case errors.Is(err, wire.ErrTransportClosed):
				log.Debug("client disconnected")
			case errors.Is(err, wire.ErrProtocolViolation):
				if registry.AllowProtocolViolationLog() {
					log.Warn("protocol violation, closing connection", "error", err)
				}
			default:
				log.Warn("transport error on read", "error", err)
			}
			if entry.deactivate() {
				entry.teardown()
			}
			return
		}

		if !entry.IsActive() {
			return
		}
		mixer.Deposit(frame)
	}
}
