package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"sensor-collector/internal/models"
	"sensor-collector/internal/rules"
)

// LoadCatalog builds the threshold catalog once at startup.
// Precedence: THRESHOLDS_<METRIC> env vars, then the optional file's
// "thresholds" section, then the stock defaults.
func LoadCatalog(path string) (rules.Catalog, error) {
	v := viper.New()
	for name, limit := range rules.DefaultThresholds() {
		v.SetDefault("thresholds."+name, limit)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return rules.Catalog{}, fmt.Errorf("failed to read thresholds file %s: %w", path, err)
		}
	}

	names := map[string]struct{}{}
	for name := range rules.DefaultThresholds() {
		names[name] = struct{}{}
	}
	for name := range v.GetStringMap("thresholds") {
		names[name] = struct{}{}
	}

	thresholds := make(map[string]float64, len(names))
	for name := range names {
		if !models.IsKnownMetric(name) {
			return rules.Catalog{}, fmt.Errorf("unknown metric %q in thresholds (known: %v)", name, models.KnownMetrics)
		}
		limit, err := cast.ToFloat64E(v.Get("thresholds." + name))
		if err != nil {
			return rules.Catalog{}, fmt.Errorf("threshold for %s: %w", name, err)
		}
		thresholds[name] = limit
	}
	return rules.NewCatalog(thresholds)
}
