package hybrid

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// CNNConfig describes the convolutional stack. All per-layer lists must have one entry per layer.
type CNNConfig struct {
	InputChannels int     `yaml:"input_channels" json:"input_channels" default:"3" validate:"gte=1"`
	Filters       []int   `yaml:"filters" json:"filters" default:"[8,16]" validate:"required,min=1,dive,gte=1"`
	KernelSizes   []int   `yaml:"kernel_sizes" json:"kernel_sizes" default:"[3,3]" validate:"required,min=1,dive,gte=1"`
	Strides       []int   `yaml:"strides" json:"strides" default:"[1,1]" validate:"required,min=1,dive,gte=1"`
	Padding       []int   `yaml:"padding" json:"padding" default:"[1,1]" validate:"required,min=1,dive,gte=0"`
	PoolingSizes  []int   `yaml:"pooling_sizes" json:"pooling_sizes" default:"[2,2]" validate:"required,min=1,dive,gte=1"`
	DropoutRate   float64 `yaml:"dropout_rate" json:"dropout_rate" default:"0.2" validate:"gte=0,lt=1"`
	BatchNorm     bool    `yaml:"batch_norm" json:"batch_norm"`
}

// LSTMConfig describes the external sequence model. Only HiddenSize shapes the fusion input here.
type LSTMConfig struct {
	HiddenSize    int     `yaml:"hidden_size" json:"hidden_size" default:"16" validate:"gte=0"`
	Layers        int     `yaml:"layers" json:"layers" default:"2" validate:"gte=1"`
	DropoutRate   float64 `yaml:"dropout_rate" json:"dropout_rate" default:"0.2" validate:"gte=0,lt=1"`
	Bidirectional bool    `yaml:"bidirectional" json:"bidirectional"`
	Attention     bool    `yaml:"attention" json:"attention"`
}

type Config struct {
	CNN             CNNConfig  `yaml:"cnn" json:"cnn"`
	LSTM            LSTMConfig `yaml:"lstm" json:"lstm"`
	SequenceLength  int        `yaml:"sequence_length" json:"sequence_length" default:"10" validate:"gte=1"`
	OutputClasses   int        `yaml:"output_classes" json:"output_classes" default:"3" validate:"eq=3"` // sell, hold, buy
	LearningRate    float64    `yaml:"learning_rate" json:"learning_rate" default:"0.001" validate:"gt=0"`
	BatchSize       int        `yaml:"batch_size" json:"batch_size" default:"32" validate:"gte=1"`
	Epochs          int        `yaml:"epochs" json:"epochs" default:"10" validate:"gte=1"`
	L1Reg           float64    `yaml:"l1_reg" json:"l1_reg" validate:"gte=0"`
	L2Reg           float64    `yaml:"l2_reg" json:"l2_reg" default:"0.0001" validate:"gte=0"`
	ValidationSplit float64    `yaml:"validation_split" json:"validation_split" default:"0.2" validate:"gte=0,lt=1"`
	UpdateWeights   bool       `yaml:"update_weights" json:"update_weights"`
	Seed            int64      `yaml:"seed" json:"seed" default:"42"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		CNN: CNNConfig{
			InputChannels: 3,
			Filters:       []int{8, 16},
			KernelSizes:   []int{3, 3},
			Strides:       []int{1, 1},
			Padding:       []int{1, 1},
			PoolingSizes:  []int{2, 2},
			DropoutRate:   0.2,
			BatchNorm:     true,
		},
		LSTM: LSTMConfig{
			HiddenSize:  16,
			Layers:      2,
			DropoutRate: 0.2,
			Attention:   true,
		},
		SequenceLength:  10,
		OutputClasses:   3,
		LearningRate:    0.001,
		BatchSize:       32,
		Epochs:          10,
		L2Reg:           0.0001,
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

var validate = validator.New()

// Validate checks field ranges and that every per-layer list has the same length.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	n := len(c.CNN.Filters)
	lists := map[string]int{
		"kernel_sizes":  len(c.CNN.KernelSizes),
		"strides":       len(c.CNN.Strides),
		"padding":       len(c.CNN.Padding),
		"pooling_sizes": len(c.CNN.PoolingSizes),
	}
	for name, l := range lists {
		if l != n {
			return fmt.Errorf("%w: cnn.%s has %d entries, filters has %d", ErrInvalidConfig, name, l, n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.CNN.Filters = append([]int(nil), c.CNN.Filters...)
	out.CNN.KernelSizes = append([]int(nil), c.CNN.KernelSizes...)
	out.CNN.Strides = append([]int(nil), c.CNN.Strides...)
	out.CNN.Padding = append([]int(nil), c.CNN.Padding...)
	out.CNN.PoolingSizes = append([]int(nil), c.CNN.PoolingSizes...)
	return out
}
