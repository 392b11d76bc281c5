package quant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/quantchat/internal/logger"
	"github.com/samcharles93/quantchat/internal/metrics"
	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/tensor"
)

// Fallback reasons recorded in LayerReport.Reason.
const (
	ReasonNotQuantizable = "not quantizable"
	ReasonBlockAlign     = "input width not a multiple of the block size"
	ReasonTooSmall       = "below minimum element count"
	ReasonScaleRange     = "block scale outside fp16 range"
	ReasonNotReached     = "not reached by probe"
)

// LayerReport describes one layer of the converted graph.
type LayerReport struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	In        int     `json:"in"`
	Out       int     `json:"out"`
	ActAbsMax float32 `json:"act_absmax"`
	Reason    string  `json:"reason,omitempty"`
}

// Report summarises a conversion.
type Report struct {
	Model      string        `json:"model"`
	Bits       int           `json:"bits"`
	Converted  []LayerReport `json:"converted"`
	Fallback   []LayerReport `json:"fallback"`
	FullBytes  int           `json:"full_bytes"`
	QuantBytes int           `json:"quant_bytes"`
	Duration   time.Duration `json:"duration"`
}

// CompressionRatio is FullBytes / QuantBytes.
func (r Report) CompressionRatio() float64 {
	if r.QuantBytes == 0 {
		return 0
	}
	return float64(r.FullBytes) / float64(r.QuantBytes)
}

type traceEntry struct {
	layer  model.Layer
	absMax float32
}

// probeTracer records the layers a forward pass visits in order.
type probeTracer struct {
	order []string
	seen  map[string]*traceEntry
}

func newProbeTracer() *probeTracer {
	return &probeTracer{seen: make(map[string]*traceEntry)}
}

func (p *probeTracer) Visit(l model.Layer, in, _ []float32) {
	e, ok := p.seen[l.Name()]
	if !ok {
		e = &traceEntry{layer: l}
		p.seen[l.Name()] = e
		p.order = append(p.order, l.Name())
	}
	if l.Kind() == model.KindEmbedding {
		return
	}
	e.absMax = max(e.absMax, tensor.AbsMax(in))
}

// Convert returns a dynamically quantized copy of m. The probe sequence is
// run once to discover the layers of the graph; no weights depend on it.
// Layers the backend cannot handle stay in full precision and are listed in
// the report. m is left untouched.
func Convert(ctx context.Context, m *model.Model, probe []int, cfg Config) (*model.Model, Report, error) {
	log := logger.FromContext(ctx).With("component", "quant")
	start := time.Now()

	if m == nil {
		return nil, Report{}, &ConversionError{Stage: StagePrepare, Err: errors.New("nil model")}
	}
	if err := cfg.Validate(); err != nil {
		return nil, Report{}, &ConversionError{Stage: StagePrepare, Err: err}
	}
	if m.Training() {
		return nil, Report{}, &ConversionError{Stage: StagePrepare, Err: ErrNotEvalMode}
	}

	if err := m.CheckInput(probe); err != nil {
		return nil, Report{}, &ConversionError{Stage: StageProbe, Err: err}
	}
	tr := newProbeTracer()
	if _, err := m.ScoreTraced(ctx, probe, tr); err != nil {
		return nil, Report{}, &ConversionError{Stage: StageProbe, Err: err}
	}
	log.Debug("probe traced", "layers", len(tr.order), "tokens", len(probe))

	rep := Report{Model: m.Name(), Bits: cfg.Bits, FullBytes: m.WeightBytes()}
	out, err := m.Rebuild(func(l model.Layer) (model.Layer, error) {
		if err := ctx.Err(); err != nil {
			return nil, &ConversionError{Stage: StageConvert, Layer: l.Name(), Err: err}
		}
		lr := LayerReport{Name: l.Name(), Kind: l.Kind(), In: l.InDim(), Out: l.OutDim()}
		entry, ok := tr.seen[l.Name()]
		if !ok {
			lr.Reason = ReasonNotReached
			rep.Fallback = append(rep.Fallback, lr)
			return l, nil
		}
		lr.ActAbsMax = entry.absMax

		nl, reason, err := convertLayer(l, cfg)
		if err != nil {
			return nil, &ConversionError{Stage: StageConvert, Layer: l.Name(), Err: err}
		}
		if reason != "" {
			lr.Reason = reason
			rep.Fallback = append(rep.Fallback, lr)
			log.Debug("layer kept in full precision", "layer", l.Name(), "reason", reason)
			return l, nil
		}
		lr.Kind = nl.Kind()
		rep.Converted = append(rep.Converted, lr)
		log.Debug("layer quantized", "layer", l.Name(), "in", lr.In, "out", lr.Out, "act_absmax", lr.ActAbsMax)
		return nl, nil
	})
	if err != nil {
		var ce *ConversionError
		if errors.As(err, &ce) {
			return nil, Report{}, ce
		}
		return nil, Report{}, &ConversionError{Stage: StageConvert, Err: err}
	}

	// The embedding table is shared, never traced through Rebuild.
	rep.Fallback = append([]LayerReport{{
		Name:   m.Embed.Name(),
		Kind:   m.Embed.Kind(),
		In:     m.Embed.InDim(),
		Out:    m.Embed.OutDim(),
		Reason: ReasonNotQuantizable,
	}}, rep.Fallback...)

	rep.QuantBytes = out.WeightBytes()
	rep.Duration = time.Since(start)
	metrics.RecordConversion(len(rep.Converted), len(rep.Fallback))
	log.Info("model converted",
		"model", rep.Model,
		"converted", len(rep.Converted),
		"fallback", len(rep.Fallback),
		"ratio", fmt.Sprintf("%.2fx", rep.CompressionRatio()),
		"elapsed", rep.Duration,
	)
	return out, rep, nil
}

// convertLayer returns the quantized replacement for l, or a non-empty
// fallback reason when l must stay in full precision.
func convertLayer(l model.Layer, cfg Config) (model.Layer, string, error) {
	q, ok := l.(model.Quantizable)
	if !ok {
		return nil, ReasonNotQuantizable, nil
	}
	w := q.Weight()
	if w.C%cfg.BlockSize != 0 {
		return nil, ReasonBlockAlign, nil
	}
	if len(w.Data) < cfg.MinElements {
		return nil, ReasonTooSmall, nil
	}
	dl, err := NewDynamicLinear(q, cfg.Bits)
	switch {
	case errors.Is(err, tensor.ErrScaleRange):
		return nil, ReasonScaleRange, nil
	case err != nil:
		return nil, "", err
	}
	return dl, "", nil
}
