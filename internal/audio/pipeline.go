package audio

import (
	"time"

	"github.com/rs/zerolog"
)

// Pipeline is the sample path executed inside the real-time callback. It
// never blocks: if the state cell or the writer is contended the buffer is
// dropped.
type Pipeline struct {
	state   *StateCell
	out     *WAVWriter
	cfg     StreamConfig
	scratch []int
	log     zerolog.Logger
	metrics *Metrics
}

func NewPipeline(state *StateCell, out *WAVWriter, cfg StreamConfig, log zerolog.Logger, metrics *Metrics) *Pipeline {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{
		state:   state,
		out:     out,
		cfg:     cfg,
		scratch: make([]int, 0, 4096),
		// One line per second at most from the callback thread.
		log:     log.Sample(&zerolog.BurstSampler{Burst: 1, Period: time.Second}),
		metrics: metrics,
	}
}

func (p *Pipeline) ProcessF32(in []float32) {
	p.process(func(dst []int) []int { return mixF32(dst, in, p.cfg.Channels) })
}

func (p *Pipeline) ProcessS16(in []int16) {
	p.process(func(dst []int) []int { return mixInt(dst, in, p.cfg.Channels, s16FromS16) })
}

func (p *Pipeline) ProcessS32(in []int32) {
	p.process(func(dst []int) []int { return mixInt(dst, in, p.cfg.Channels, s16FromS32) })
}

func (p *Pipeline) ProcessU8(in []uint8) {
	p.process(func(dst []int) []int { return mixInt(dst, in, p.cfg.Channels, s16FromU8) })
}

func (p *Pipeline) ProcessU16(in []uint16) {
	p.process(func(dst []int) []int { return mixInt(dst, in, p.cfg.Channels, s16FromU16) })
}

// ProcessRaw handles little-endian interleaved bytes in the negotiated format.
func (p *Pipeline) ProcessRaw(in []byte) {
	p.process(func(dst []int) []int { return mixRaw(dst, in, p.cfg.Format, p.cfg.Channels) })
}

func (p *Pipeline) process(fill func([]int) []int) {
	st, ok := p.state.TryGet()
	if !ok {
		p.metrics.droppedStateBusy.Inc()
		return
	}
	if st != Recording {
		p.metrics.droppedNotRecording.Inc()
		return
	}

	if !p.out.mu.TryLock() {
		p.metrics.droppedWriterBusy.Inc()
		return
	}
	defer p.out.mu.Unlock()

	p.scratch = fill(p.scratch[:0])
	if err := p.out.write(p.scratch); err != nil {
		p.metrics.writeErrors.Inc()
		p.log.Debug().Err(err).Int("samples", len(p.scratch)).Msg("Dropped samples")
		return
	}
	p.metrics.framesWritten.Add(float64(len(p.scratch)))
}
