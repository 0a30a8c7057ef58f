package external

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"MediaSteGo/pkg/models"
)

// StegExposeThreshold is the fusion score above which StegExpose reports a detection
const StegExposeThreshold = 0.5

// OpenStegoConfidence is reported when OpenStego manages to extract a payload
const OpenStegoConfidence = 0.85

// JavaTool locates a Java based steganalysis jar
type JavaTool struct {
	Runner CommandRunner
	Java   string
	Jar    string
}

func (t JavaTool) available() error {
	if t.Jar == "" {
		return fmt.Errorf("%w: jar path not configured", models.ErrCollaboratorUnavailable)
	}
	if _, err := os.Stat(t.Jar); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrCollaboratorUnavailable, t.Jar, err)
	}
	return nil
}

func (t JavaTool) run(ctx context.Context, args ...string) (Output, error) {
	java := t.Java
	if java == "" {
		java = "java"
	}
	return t.Runner.Run(ctx, java, append([]string{"-jar", t.Jar}, args...)...)
}

// StegExpose runs the StegExpose batch steganalyser on a single image
type StegExpose struct {
	JavaTool
}

func (s *StegExpose) Method() models.Method { return models.MethodStegExpose }

func (s *StegExpose) Detect(ctx context.Context, path string) (models.MethodResult, error) {
	if err := s.available(); err != nil {
		return models.MethodResult{}, err
	}
	out, err := s.run(ctx, path, "-all")
	if err != nil {
		return models.MethodResult{}, fmt.Errorf("stegexpose: %w", err)
	}
	return ParseStegExpose(string(out.Stdout))
}

// ParseStegExpose reads the "file,chi-square,weighted,sample-pairs,fusion" CSV line
func ParseStegExpose(output string) (models.MethodResult, error) {
	line := lastLine(output)
	parts := strings.Split(line, ",")
	if len(parts) < 5 {
		return models.MethodResult{}, fmt.Errorf("unexpected stegexpose output: %q", line)
	}

	names := []string{"chi_square_score", "weighted_score", "sample_pairs_score", "fusion_score"}
	raw := make(map[string]any, len(names))
	var fusion float64
	for i, name := range names {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return models.MethodResult{}, fmt.Errorf("stegexpose %s: %w", name, err)
		}
		raw[name] = v
		fusion = v
	}

	return models.MethodResult{
		Detected:   fusion > StegExposeThreshold,
		Confidence: math.Max(0, math.Min(0.95, fusion)),
		Raw:        raw,
	}, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// OpenStego tries an LSB extraction; a successful extraction is a detection
type OpenStego struct {
	JavaTool
}

func (o *OpenStego) Method() models.Method { return models.MethodOpenStego }

func (o *OpenStego) Detect(ctx context.Context, path string) (models.MethodResult, error) {
	if err := o.available(); err != nil {
		return models.MethodResult{}, err
	}
	out, err := o.run(ctx, "extract", "-a", "lsb", "-sf", path)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return models.MethodResult{}, fmt.Errorf("openstego: %w", err)
	}
	return ParseOpenStego(out.Combined()), nil
}

// ParseOpenStego inspects the combined tool output for an extraction report
func ParseOpenStego(output string) models.MethodResult {
	detected := strings.Contains(strings.ToLower(output), "extracted")
	res := models.MethodResult{
		Detected: detected,
		Raw:      map[string]any{"tool_output": strings.TrimSpace(output)},
	}
	if detected {
		res.Confidence = OpenStegoConfidence
	}
	return res
}
