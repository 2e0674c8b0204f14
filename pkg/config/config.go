package config

import (
	"context"
	"fmt"
	"os"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/yaml"

	"github.com/ovsnet/ovsvlan/pkg/backoff"
)

const DefaultDBPath = "/var/lib/ovsvlan/ovsvlan.db"

// Config configuration of the ovsvlan plugin
type Config struct {
	// VlanStart and VlanEnd bound the vlan tags handed out, [VlanStart, VlanEnd).
	// 0 and 4095 are reserved and can not be configured.
	VlanStart int `json:"vlan_start" mod:"default=2" validate:"gte=1,lt=4095"`
	VlanEnd   int `json:"vlan_end" mod:"default=4094" validate:"gtfield=VlanStart,lte=4095"`

	DBPath        string `json:"db_path" mod:"default=/var/lib/ovsvlan/ovsvlan.db" validate:"required"`
	LogLevel      string `json:"log_level" mod:"default=info" validate:"oneof=trace debug info warn warning error"`
	MetricsListen string `json:"metrics_listen" mod:"default=:9190" validate:"required"`

	BackoffOverride map[string]wait.Backoff `json:"backoff_override,omitempty"`
}

// Load reads the config at path, applies the optional overlay on top of it,
// fills defaults and validates. An empty path yields the defaults.
func Load(path, overlayPath string) (*Config, error) {
	var base, top []byte
	var err error
	if path != "" {
		base, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error read config %s, %w", path, err)
		}
	}
	if overlayPath != "" {
		top, err = os.ReadFile(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("error read config overlay %s, %w", overlayPath, err)
		}
	}

	cfg, err := MergeConfigAndUnmarshal(top, base)
	if err != nil {
		return nil, err
	}
	if err = cfg.Complete(context.Background()); err != nil {
		return nil, err
	}

	backoff.OverrideBackoff(cfg.BackoffOverride)
	return cfg, nil
}

// MergeConfigAndUnmarshal merges topCfg into baseCfg as an RFC7396 merge
// patch. Both documents may be yaml or json.
func MergeConfigAndUnmarshal(topCfg, baseCfg []byte) (*Config, error) {
	baseJSON, err := toJSON(baseCfg)
	if err != nil {
		return nil, fmt.Errorf("error parse config, %w", err)
	}

	if len(topCfg) > 0 {
		topJSON, err := toJSON(topCfg)
		if err != nil {
			return nil, fmt.Errorf("error parse config overlay, %w", err)
		}
		baseJSON, err = jsonpatch.MergePatch(baseJSON, topJSON)
		if err != nil {
			return nil, fmt.Errorf("error merge config overlay, %w", err)
		}
	}

	config := &Config{}
	err = yaml.Unmarshal(baseJSON, config)
	return config, err
}

// Complete fills defaults and validates the config.
func (c *Config) Complete(ctx context.Context) error {
	if err := modifiers.New().Struct(ctx, c); err != nil {
		return err
	}
	return validator.New().Struct(c)
}

func toJSON(in []byte) ([]byte, error) {
	if len(in) == 0 {
		return []byte("{}"), nil
	}
	return yaml.YAMLToJSON(in)
}
