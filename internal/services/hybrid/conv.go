package hybrid

import (
	"math"
	"math/rand"

	"FinHybrid/internal/services/numeric"
)

// FilterBank is the learnable state of one convolutional layer.
type FilterBank struct {
	Weights [][][]float64 // out, in, kernel
	Bias    []float64
}

// Clone returns a deep copy.
func (b FilterBank) Clone() FilterBank {
	out := FilterBank{
		Weights: make([][][]float64, len(b.Weights)),
		Bias:    append([]float64(nil), b.Bias...),
	}
	for o, in := range b.Weights {
		out.Weights[o] = make([][]float64, len(in))
		for i, k := range in {
			out.Weights[o][i] = append([]float64(nil), k...)
		}
	}
	return out
}

type ConvLayer struct {
	bank      FilterBank
	stride    int
	padding   int
	poolSize  int
	batchNorm bool
	dropout   float64
}

// newConvLayer draws weights uniformly from [-s, s] with s = sqrt(2/(in*kernel)).
func newConvLayer(in, out, kernel, stride, padding, pool int, batchNorm bool, dropout float64, rng *rand.Rand) *ConvLayer {
	scale := math.Sqrt(2 / float64(in*kernel))
	bank := FilterBank{
		Weights: make([][][]float64, out),
		Bias:    make([]float64, out),
	}
	for o := range bank.Weights {
		bank.Weights[o] = make([][]float64, in)
		for i := range bank.Weights[o] {
			k := make([]float64, kernel)
			for j := range k {
				k[j] = (rng.Float64()*2 - 1) * scale
			}
			bank.Weights[o][i] = k
		}
	}
	return &ConvLayer{
		bank:      bank,
		stride:    stride,
		padding:   padding,
		poolSize:  pool,
		batchNorm: batchNorm,
		dropout:   dropout,
	}
}

// Forward returns the pooled output (channels x pooled length) and the pre-pooling activation maps.
func (l *ConvLayer) Forward(input [][]float64, training bool, rng numeric.Float64Source) ([][]float64, [][]float64) {
	n := 0
	if len(input) > 0 {
		n = len(input[0])
	}
	length := numeric.OutputLength(n, len(l.bank.Weights[0][0]), l.stride, l.padding)

	out := make([][]float64, len(l.bank.Weights))
	activations := make([][]float64, len(l.bank.Weights))
	for o, kernels := range l.bank.Weights {
		acc := make([]float64, length)
		for c, kernel := range kernels {
			if c >= len(input) {
				break
			}
			for i, v := range numeric.Conv1D(input[c], kernel, l.stride, l.padding) {
				acc[i] += v
			}
		}
		for i := range acc {
			acc[i] = numeric.ReLU(acc[i] + l.bank.Bias[o])
		}
		if l.batchNorm {
			acc = numeric.BatchNorm(acc, numeric.DefaultEpsilon)
		}
		if training {
			acc = numeric.Dropout(acc, l.dropout, true, rng)
		}
		activations[o] = acc
		out[o] = numeric.MaxPool1D(acc, l.poolSize, l.poolSize)
	}
	return out, activations
}

// OutputLength is the pooled length produced from an input of length n.
func (l *ConvLayer) OutputLength(n int) int {
	conv := numeric.OutputLength(n, len(l.bank.Weights[0][0]), l.stride, l.padding)
	return numeric.PoolLength(conv, l.poolSize, l.poolSize)
}

// ConvStage chains convolutional layers. Layer i>0 reads the channels of layer i-1.
type ConvStage struct {
	layers []*ConvLayer
}

func NewConvStage(cfg CNNConfig, rng *rand.Rand) *ConvStage {
	s := &ConvStage{layers: make([]*ConvLayer, len(cfg.Filters))}
	in := cfg.InputChannels
	for i, filters := range cfg.Filters {
		s.layers[i] = newConvLayer(in, filters, cfg.KernelSizes[i], cfg.Strides[i], cfg.Padding[i],
			cfg.PoolingSizes[i], cfg.BatchNorm, cfg.DropoutRate, rng)
		in = filters
	}
	return s
}

// Forward runs every layer and returns the final pooled maps plus each layer's activation maps.
func (s *ConvStage) Forward(input [][]float64, training bool, rng numeric.Float64Source) ([][]float64, [][][]float64) {
	maps := make([][][]float64, 0, len(s.layers))
	x := input
	for _, l := range s.layers {
		var act [][]float64
		x, act = l.Forward(x, training, rng)
		maps = append(maps, act)
	}
	return x, maps
}

func (s *ConvStage) OutputLength(n int) int {
	for _, l := range s.layers {
		n = l.OutputLength(n)
	}
	return n
}

// OutputChannels equals the filter count of the last layer.
func (s *ConvStage) OutputChannels() int {
	if len(s.layers) == 0 {
		return 0
	}
	return len(s.layers[len(s.layers)-1].bank.Weights)
}

func (s *ConvStage) Layers() int { return len(s.layers) }

// FilterBanks returns deep copies of every layer's weights.
func (s *ConvStage) FilterBanks() []FilterBank {
	out := make([]FilterBank, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.bank.Clone()
	}
	return out
}
