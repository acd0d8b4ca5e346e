package risk

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData = errors.New("insufficient data for simulation")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// MonteCarloSimulator bootstraps paths from a daily return series
// ⭐ SSOT: same seed + same input → same distribution
type MonteCarloSimulator struct {
	config MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator creates a simulator. Seed 0 means the wall clock.
func NewMonteCarloSimulator(config MonteCarloConfig) *MonteCarloSimulator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		config.Seed = seed
	}
	return &MonteCarloSimulator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// RunMonteCarlo validates config and input, then simulates
func RunMonteCarlo(returns []float64, config MonteCarloConfig) (*MonteCarloResult, error) {
	if config.NumSimulations < 1 || config.HoldingPeriod < 0 {
		return nil, fmt.Errorf("%w: simulations=%d holding_period=%d",
			ErrInvalidConfig, config.NumSimulations, config.HoldingPeriod)
	}
	// Fail-closed: minimum sample size
	minSamples := config.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if len(returns) < minSamples {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientData, len(returns), minSamples)
	}

	return NewMonteCarloSimulator(config).SimulateReturns(returns)
}

// SimulateReturns resamples daily returns with replacement and compounds them
// over the holding period, once per path.
func (mc *MonteCarloSimulator) SimulateReturns(returns []float64) (*MonteCarloResult, error) {
	if len(returns) == 0 {
		return nil, ErrInsufficientData
	}
	horizon := mc.config.HoldingPeriod
	if horizon == 0 {
		horizon = len(returns)
	}

	finals := make([]float64, mc.config.NumSimulations)
	for i := range finals {
		cum := 1.0
		for d := 0; d < horizon; d++ {
			cum *= 1 + returns[mc.rng.Intn(len(returns))]
		}
		finals[i] = cum - 1
	}

	result := mc.calculateResult(finals)
	result.InputSampleCount = len(returns)
	return result, nil
}

// calculateResult summarizes the simulated final returns
func (mc *MonteCarloSimulator) calculateResult(finals []float64) *MonteCarloResult {
	sorted := make([]float64, len(finals))
	copy(sorted, finals)
	sort.Float64s(sorted)

	mean, std := stat.Mean(sorted, nil), 0.0
	if len(sorted) > 1 {
		std = stat.StdDev(sorted, nil)
	}

	losses := sort.SearchFloat64s(sorted, 0)
	var95 := CalculateVaR(sorted, 0.95)

	percentiles := make(map[int]float64, 5)
	for _, p := range []int{5, 25, 50, 75, 95} {
		percentiles[p] = stat.Quantile(float64(p)/100, stat.Empirical, sorted, nil)
	}

	return &MonteCarloResult{
		RunID:       uuid.New().String(),
		Config:      mc.config,
		MeanReturn:  mean,
		StdDev:      std,
		VaR95:       var95.VaR,
		CVaR95:      var95.CVaR,
		ProbLoss:    float64(losses) / float64(len(sorted)),
		Percentiles: percentiles,
		CreatedAt:   time.Now(),
	}
}
