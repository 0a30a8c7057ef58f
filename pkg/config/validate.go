package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"MediaSteGo/pkg/models"
)

var validate = validator.New()

// Validate checks struct tags, the method weight table and band ordering
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error

	for name, w := range c.Weights {
		if _, err := models.ParseMethod(name); err != nil {
			errs = append(errs, fmt.Errorf("weights: %w", err))
			continue
		}
		if w <= 0 {
			errs = append(errs, fmt.Errorf("weights: %s must be positive, got %v", name, w))
		}
	}

	for _, name := range c.Aggregate.Externals {
		m, err := models.ParseMethod(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("aggregate.externals: %w", err))
			continue
		}
		if !m.IsExternal() {
			errs = append(errs, fmt.Errorf("aggregate.externals: %s is not an external detector", name))
		}
	}

	errs = append(errs, checkBands("bands.chi_square", c.Bands.ChiSquare, true)...)
	errs = append(errs, checkBands("bands.rs", c.Bands.RS, true)...)
	errs = append(errs, checkBands("bands.entropy", c.Bands.Entropy, false)...)
	errs = append(errs, checkBands("bands.histogram", c.Bands.Histogram, false)...)

	if c.Thresholds.ChiStrict >= c.Thresholds.ChiSignificance {
		errs = append(errs, fmt.Errorf("thresholds.chi_strict (%v) must be below chi_significance (%v)",
			c.Thresholds.ChiStrict, c.Thresholds.ChiSignificance))
	}
	if c.Thresholds.ChiLoose <= c.Thresholds.ChiSignificance {
		errs = append(errs, fmt.Errorf("thresholds.chi_loose (%v) must be above chi_significance (%v)",
			c.Thresholds.ChiLoose, c.Thresholds.ChiSignificance))
	}
	if c.Thresholds.AudioLoose > c.Thresholds.AudioEntropy {
		errs = append(errs, fmt.Errorf("thresholds.audio_entropy_loose (%v) must not be above audio_entropy (%v)",
			c.Thresholds.AudioLoose, c.Thresholds.AudioEntropy))
	}
	if c.Thresholds.AudioStrict < c.Thresholds.AudioEntropy {
		errs = append(errs, fmt.Errorf("thresholds.audio_entropy_strict (%v) must not be below audio_entropy (%v)",
			c.Thresholds.AudioStrict, c.Thresholds.AudioEntropy))
	}

	return errors.Join(errs...)
}

// checkBands enforces strictest-first ordering. Ascending bands fire below their threshold
// so thresholds must grow; descending bands fire above it so thresholds must shrink.
func checkBands(name string, bands []Band, ascending bool) []error {
	var errs []error
	for i := 1; i < len(bands); i++ {
		prev, cur := bands[i-1].Threshold, bands[i].Threshold
		if ascending && cur <= prev {
			errs = append(errs, fmt.Errorf("%s[%d]: threshold %v must be above %v", name, i, cur, prev))
		}
		if !ascending && cur >= prev {
			errs = append(errs, fmt.Errorf("%s[%d]: threshold %v must be below %v", name, i, cur, prev))
		}
	}
	return errs
}
