package models

// PresetConfig represents a parsed model preset .toml file.
type PresetConfig struct {
	Version   string          `toml:"version" json:"version"`
	Hyper     HyperConfig     `toml:"hyper" json:"hyper"`
	Transform TransformConfig `toml:"transform" json:"transform"`
}

type HyperConfig struct {
	Hiddens     []int    `toml:"hiddens" json:"hiddens"`
	Activations []string `toml:"activations" json:"activations"`
	Heads       []int    `toml:"heads,omitempty" json:"heads,omitempty"`
	Hidden      int      `toml:"hidden,omitempty" json:"-"`     // Deprecated: use Hiddens
	Activation  string   `toml:"activation,omitempty" json:"-"` // Deprecated: use Activations
	Dropout     float64  `toml:"dropout" json:"dropout"`           // default: 0.5
	LR          float64  `toml:"lr" json:"lr"`                     // default: 0.01
	WeightDecay float64  `toml:"weight_decay" json:"weight_decay"` // default: 5e-4
	UseBias     bool     `toml:"use_bias" json:"use_bias"`
	Order       int      `toml:"order,omitempty" json:"order,omitempty"` // chebynet/sgc propagation order
	K           int      `toml:"k,omitempty" json:"k,omitempty"`         // dagnn propagation depth
}

type TransformConfig struct {
	AttrNorm    string  `toml:"attr_norm" json:"attr_norm"`
	AdjNormRate float64 `toml:"adj_norm_rate" json:"adj_norm_rate"` // default: -0.5
	SelfLoop    float64 `toml:"self_loop" json:"self_loop"`         // default: 1.0
}

// Attribute normalization modes accepted in preset transform blocks.
const (
	AttrNormL1          = "l1"
	AttrNormL1Zero      = "l1_0"
	AttrNormScale       = "scale"
	AttrNormRobustScale = "robust_scale"
)

// KnownAttrNorm reports whether mode names a supported attribute
// normalization. The empty string disables normalization.
func KnownAttrNorm(mode string) bool {
	switch mode {
	case "", AttrNormL1, AttrNormL1Zero, AttrNormScale, AttrNormRobustScale:
		return true
	}
	return false
}
