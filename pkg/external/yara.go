package external

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"MediaSteGo/pkg/models"
)

// SignatureMatch is one YARA rule hit
type SignatureMatch struct {
	Rule    string        `json:"rule"`
	Tags    []string      `json:"tags,omitempty"`
	Strings []MatchString `json:"strings,omitempty"`
}

// MatchString is one matched string of a rule
type MatchString struct {
	Offset     int64  `json:"offset"`
	Identifier string `json:"identifier"`
	Data       string `json:"data"`
}

// SignatureScanner matches a file against a signature rule set
type SignatureScanner interface {
	Scan(ctx context.Context, path string) ([]SignatureMatch, error)
}

// YaraCLI scans with the yara command line tool
type YaraCLI struct {
	Runner CommandRunner
	Binary string
	Rules  string
}

func (y *YaraCLI) Scan(ctx context.Context, path string) ([]SignatureMatch, error) {
	if y.Rules == "" {
		return nil, fmt.Errorf("%w: no yara rules configured", models.ErrCollaboratorUnavailable)
	}
	if _, err := os.Stat(y.Rules); err != nil {
		return nil, fmt.Errorf("%w: yara rules: %v", models.ErrCollaboratorUnavailable, err)
	}

	bin := y.Binary
	if bin == "" {
		bin = "yara"
	}
	out, err := y.Runner.Run(ctx, bin, "-g", "-s", y.Rules, path)
	if err != nil {
		return nil, fmt.Errorf("yara: %w", err)
	}
	return ParseYaraOutput(string(out.Stdout)), nil
}

// ParseYaraOutput parses "rule [tags] file" header lines, each followed by
// "0xoffset:$id: data" string lines
func ParseYaraOutput(output string) []SignatureMatch {
	var matches []SignatureMatch
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "0x") {
			if len(matches) == 0 {
				continue
			}
			if s, ok := parseMatchString(line); ok {
				last := &matches[len(matches)-1]
				last.Strings = append(last.Strings, s)
			}
			continue
		}

		fields := strings.Fields(line)
		m := SignatureMatch{Rule: fields[0]}
		if len(fields) > 1 && strings.HasPrefix(fields[1], "[") {
			tags := strings.Trim(fields[1], "[]")
			if tags != "" {
				m.Tags = strings.Split(tags, ",")
			}
		}
		matches = append(matches, m)
	}
	return matches
}

func parseMatchString(line string) (MatchString, bool) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 3 {
		return MatchString{}, false
	}
	offset, err := strconv.ParseInt(strings.TrimPrefix(parts[0], "0x"), 16, 64)
	if err != nil {
		return MatchString{}, false
	}
	return MatchString{
		Offset:     offset,
		Identifier: parts[1],
		Data:       strings.TrimSpace(parts[2]),
	}, true
}
