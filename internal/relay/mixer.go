package relay

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"
)

// CanonicalFrameBytes is the default canonical PCM frame size: 1920
// interleaved stereo 16-bit samples at 48 kHz, 20 ms of audio. It is the
// default for Config.FrameSize / Mixer's output size, both of which are
// runtime-configurable per the resolved Open Question on frame
// parameters (SPEC_FULL.md §9).
const CanonicalFrameBytes = 3840

// inbox is the Mixer Inbox: an unordered multiset of inbound frame
// buffers accumulated since the last mixer tick, drained atomically each
// tick via swap with a fresh empty container. It carries its own lock,
// isolated from the registry lock and every per-client queue lock, and
// must never be held while any other lock is acquired.
type inbox struct {
	mu     sync.Mutex
	frames [][]byte
}

func (b *inbox) add(frame []byte) {
	b.mu.Lock()
	b.frames = append(b.frames, frame)
	b.mu.Unlock()
}

// swap atomically replaces the inbox contents with a fresh empty slice
// and returns what had accumulated since the previous swap.
func (b *inbox) swap() [][]byte {
	b.mu.Lock()
	drained := b.frames
	b.frames = nil
	b.mu.Unlock()
	return drained
}

// Mixer is the single task that, on a fixed cadence, drains the inbox,
// produces one mixed PCM frame, and enqueues it onto every active
// client's send queue. Shaped directly on the teacher's media.Mixer
// mixLoop/mixCycle structure (tick, snapshot, accumulate, publish), but
// the arithmetic itself diverges from the teacher deliberately: this
// mixer sums raw saturating 16-bit PCM with no codec round-trip and
// includes every contributor in its own mix (no N-1 exclusion).
type Mixer struct {
	registry   *Registry
	period     time.Duration
	frameBytes int
	logger     *slog.Logger

	in inbox

	framesMixed   func()
	framesDropped func(reason string)
	cycleObserved func(time.Duration)

	done chan struct{}
}

// MixerMetrics lets the admin HTTP surface observe mixer activity
// without the mixer importing the metrics package directly.
type MixerMetrics struct {
	FramesMixed   func()
	FramesDropped func(reason string)
	CycleObserved func(time.Duration)
}

// NewMixer creates a mixer that fans its output out through registry,
// ticking every period and producing output frames of frameBytes (the
// canonical size against which every input frame is projected; pass 0
// or a negative value to fall back to CanonicalFrameBytes). metrics may
// be the zero value, in which case observations are silently discarded.
func NewMixer(registry *Registry, period time.Duration, frameBytes int, logger *slog.Logger, metrics MixerMetrics) *Mixer {
	if frameBytes <= 0 {
		frameBytes = CanonicalFrameBytes
	}
	m := &Mixer{
		registry:   registry,
		period:     period,
		frameBytes: frameBytes,
		logger:     logger.With("subsystem", "mixer"),
		done:       make(chan struct{}),
	}
	m.framesMixed = metrics.FramesMixed
	m.framesDropped = metrics.FramesDropped
	m.cycleObserved = metrics.CycleObserved
	if m.framesMixed == nil {
		m.framesMixed = func() {}
	}
	if m.framesDropped == nil {
		m.framesDropped = func(string) {}
	}
	if m.cycleObserved == nil {
		m.cycleObserved = func(time.Duration) {}
	}
	return m
}

// Deposit pushes a shared reference to an inbound frame buffer into the
// mixer inbox, under the inbox's own lock. Called by every Ingress
// Reader; never blocks on anything but that single lock.
func (m *Mixer) Deposit(frame []byte) {
	m.in.add(frame)
}

// Run drives the mixer loop until ctx is cancelled. It ticks on a fixed
// cadence via time.Ticker, matching the teacher's mixLoop, and signals
// completion on the returned-from channel once ctx is done.
func (m *Mixer) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	outBuf := make([]byte, m.frameBytes)

	m.logger.Info("mixer started", "period", m.period, "frame_bytes", m.frameBytes)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("mixer stopping")
			return
		case <-ticker.C:
			m.tick(outBuf)
		}
	}
}

// Done returns a channel closed once Run has returned.
func (m *Mixer) Done() <-chan struct{} {
	return m.done
}

// tick performs one mix cycle: swap the inbox, mix whatever drained out
// (a no-op if nothing accumulated), and fan the result out to every
// active client.
func (m *Mixer) tick(outBuf []byte) {
	start := time.Now()

	drained := m.in.swap()
	if len(drained) == 0 {
		return
	}

	mixed := mixFrames(drained, outBuf, m.frameBytes)
	m.framesMixed()
	m.fanOut(mixed)

	m.cycleObserved(time.Since(start))
}

// mixFrames sums every input frame into outBuf with saturating 16-bit
// arithmetic, projecting each input onto the canonical frameBytes-sized
// layout first (truncating longer frames, treating missing samples in
// shorter frames as zero). Frames are summed in the order they were
// appended to the drained slice, which is itself the order Deposit
// observed them — saturation is commutative pairwise per sample, so
// summation order never changes the result, but a fixed order keeps
// behavior reproducible given a fixed inbox snapshot.
func mixFrames(frames [][]byte, outBuf []byte, frameBytes int) []byte {
	samples := frameBytes / 2
	acc := make([]int32, samples)

	for _, frame := range frames {
		n := len(frame) / 2
		if n > samples {
			n = samples
		}
		for i := 0; i < n; i++ {
			sample := int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
			acc[i] += int32(sample)
		}
	}

	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(outBuf[i*2:i*2+2], uint16(clampInt16(acc[i])))
	}

	out := make([]byte, frameBytes)
	copy(out, outBuf)
	return out
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// fanOut publishes mixed as an immutable shared buffer to every active
// client's send queue. It acquires the registry lock only to take a
// snapshot of active entries (via ForEachActive); the per-entry queue
// lock and drop-oldest policy are applied outside the registry lock, one
// entry at a time, exactly as the registry's lock-ordering rule
// requires.
func (m *Mixer) fanOut(mixed []byte) {
	m.registry.ForEachActive(func(entry *ClientEntry) {
		if !entry.IsActive() {
			return
		}
		dropped, ok := entry.queue.push(mixed)
		if !ok {
			return
		}
		if dropped > 0 {
			m.framesDropped("queue_full")
			if entry.dropLimiter.Allow() {
				m.logger.Warn("dropping oldest frames under backpressure",
					"client_id", entry.ID,
					"dropped", dropped,
				)
			}
		}
	})
}
