package s2_signals

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// RawFactors holds the pass-1 values of one instrument. Absent = missing.
type RawFactors map[contracts.FactorName]float64

// Input is everything the model may read about one instrument as of a session.
type Input struct {
	Instrument contracts.Instrument
	History    []contracts.Bar       // daily bars, oldest first, none after asOf
	Aux        *contracts.AuxSignals // nil when the producer had nothing
}

// Result is the scored cross-section of one session, in input order.
// Ranks are assigned downstream by the selection stage.
type Result struct {
	AsOf   time.Time                  `json:"as_of"`
	Regime Regime                     `json:"regime"`
	Scores []contracts.CompositeScore `json:"scores"`
}

// Get returns the composite score of one instrument.
func (r *Result) Get(id string) (contracts.CompositeScore, bool) {
	for _, s := range r.Scores {
		if s.InstrumentID == id {
			return s, true
		}
	}
	return contracts.CompositeScore{}, false
}

// Model computes composite scores in two passes: raw factors per instrument,
// then cross-sectional normalization over the whole universe of the session.
// ⭐ SSOT: factor scoring orchestration lives here only
type Model struct {
	cfg strategyconfig.Factors

	momentum    *MomentumCalculator
	technical   *TechnicalCalculator
	volumePrice *VolumePriceCalculator
	flow        *FlowCalculator

	logger *logger.Logger
}

// NewModel creates a factor model. Weights must sum to 1.0.
func NewModel(cfg strategyconfig.Factors, log *logger.Logger) (*Model, error) {
	if err := strategyconfig.ValidateWeights(cfg.Weights); err != nil {
		return nil, err
	}
	if cfg.Normalization != strategyconfig.NormalizeRank && cfg.Normalization != strategyconfig.NormalizeZScore {
		return nil, strategyconfig.ValidationError{Field: "factors.normalization", Message: "must be rank or zscore"}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log = log.WithComponent("factor_model")

	return &Model{
		cfg:         cfg,
		momentum:    NewMomentumCalculator(cfg, log),
		technical:   NewTechnicalCalculator(cfg, log),
		volumePrice: NewVolumePriceCalculator(cfg, log),
		flow:        NewFlowCalculator(log),
		logger:      log,
	}, nil
}

// Compute scores every input as of asOf. Any bar or aux record dated after
// asOf is a LookaheadViolation. Output is bit-identical for identical inputs
// regardless of Workers.
func (m *Model) Compute(ctx context.Context, asOf time.Time, benchmark []contracts.Bar, inputs []Input) (*Result, error) {
	if err := checkLookahead(asOf, benchmark, inputs); err != nil {
		return nil, err
	}

	// Pass 1: raw factors, parallel per instrument, slotted by index
	raws := make([]RawFactors, len(inputs))
	benchCloses := closes(benchmark)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raws[i] = m.raw(gctx, inputs[i], benchCloses)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("factor pass: %w", err)
	}

	// Pass 2: normalize each computed factor across the universe; aux factors
	// keep their supplied value and only get missing values imputed
	scores := make([]contracts.CompositeScore, len(inputs))
	for i, in := range inputs {
		scores[i] = contracts.CompositeScore{
			InstrumentID: in.Instrument.ID,
			SessionDate:  asOf,
			Categories:   make(map[contracts.Category]float64, len(contracts.Categories)),
			Factors:      make([]contracts.FactorScore, 0, len(contracts.Factors)),
		}
	}

	values := make([]float64, len(inputs))
	for _, f := range contracts.Factors {
		for i := range inputs {
			v, ok := raws[i][f]
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				v = math.NaN()
			}
			values[i] = v
		}
		var norm []float64
		var imputed []bool
		if f.Prenormalized() {
			norm, imputed = Impute(m.cfg.Normalization, values)
		} else {
			norm, imputed = Normalize(m.cfg.Normalization, values)
		}
		for i := range inputs {
			raw := values[i]
			if imputed[i] {
				raw = 0
			}
			scores[i].Factors = append(scores[i].Factors, contracts.FactorScore{
				InstrumentID: inputs[i].Instrument.ID,
				SessionDate:  asOf,
				Factor:       f,
				Raw:          raw,
				Normalized:   norm[i],
				Imputed:      imputed[i],
			})
		}
	}

	for i := range scores {
		m.combine(&scores[i])
	}

	res := &Result{
		AsOf:   asOf,
		Regime: DetectRegime(benchmark),
		Scores: scores,
	}

	m.logger.WithFields(map[string]interface{}{
		"date":        contracts.SessionKey(asOf),
		"instruments": len(inputs),
		"regime":      res.Regime,
	}).Info("Computed factor scores")

	return res, nil
}

func (m *Model) raw(ctx context.Context, in Input, benchCloses []float64) RawFactors {
	code := in.Instrument.ID
	raw := RawFactors{}
	for _, part := range []RawFactors{
		m.momentum.Calculate(ctx, code, closes(in.History), benchCloses),
		m.technical.Calculate(ctx, code, in.History),
		m.volumePrice.Calculate(ctx, in.Instrument, in.History),
		m.flow.Calculate(ctx, code, in.Aux),
	} {
		for k, v := range part {
			raw[k] = v
		}
	}
	return raw
}

// combine sets the category means and the weighted composite score.
// Categories are summed in a fixed order so the float result is reproducible.
func (m *Model) combine(s *contracts.CompositeScore) {
	sums := make(map[contracts.Category]float64, len(contracts.Categories))
	counts := make(map[contracts.Category]int, len(contracts.Categories))
	for _, f := range s.Factors {
		c := f.Factor.Category()
		sums[c] += f.Normalized
		counts[c]++
	}

	s.Score = 0
	for _, c := range contracts.Categories {
		if counts[c] == 0 {
			continue
		}
		v := sums[c] / float64(counts[c])
		s.Categories[c] = v
		s.Score += m.cfg.Weights.Of(c) * v
	}
}

func checkLookahead(asOf time.Time, benchmark []contracts.Bar, inputs []Input) error {
	limit := contracts.SessionKey(asOf)
	for _, b := range benchmark {
		if contracts.SessionKey(b.SessionDate) > limit {
			return &contracts.LookaheadViolation{Component: "factor_model.benchmark", AsOf: asOf, Seen: b.SessionDate}
		}
	}
	for _, in := range inputs {
		for _, b := range in.History {
			if contracts.SessionKey(b.SessionDate) > limit {
				return &contracts.LookaheadViolation{Component: "factor_model.history", AsOf: asOf, Seen: b.SessionDate}
			}
		}
		if in.Aux != nil && contracts.SessionKey(in.Aux.SessionDate) > limit {
			return &contracts.LookaheadViolation{Component: "factor_model.aux", AsOf: asOf, Seen: in.Aux.SessionDate}
		}
	}
	return nil
}
