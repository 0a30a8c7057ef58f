package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/pipeline"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			args: []string{},
			want: options{outputDir: "mediastego_output", mode: ModeLSB},
		},
		{
			name: "short flags",
			args: []string{"-f", "a.png", "-m", "aggregate", "-w", "8", "-v"},
			want: options{filePath: "a.png", outputDir: "mediastego_output", mode: ModeAggregate, workers: 8, verbose: true},
		},
		{
			name: "directory scan with history db",
			args: []string{"--dir", "media", "--recursive", "--db", "h.db", "--json", "--mode", "security"},
			want: options{dirPath: "media", recursive: true, outputDir: "mediastego_output", dbPath: "h.db", jsonOutput: true, mode: ModeSecurity},
		},
		{name: "unknown mode", args: []string{"--mode", "magic"}, wantErr: true},
		{name: "negative workers", args: []string{"--workers", "-1"}, wantErr: true},
		{name: "unknown flag", args: []string{"--extract"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := parseArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.wav", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	urlFile := filepath.Join(dir, "urls.list")
	require.NoError(t, os.WriteFile(urlFile, []byte("# comment\nhttps://example.com/a.jpg\n\nhttps://example.com/b.mp4\n"), 0o644))

	o := &options{
		filePath:    "single.png",
		dirPath:     dir,
		urlPath:     "https://example.com/c.png",
		urlFilePath: urlFile,
	}
	assert.True(t, o.hasInput())

	inputs, err := o.inputs()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"single.png",
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.wav"),
		"https://example.com/c.png",
		"https://example.com/a.jpg",
		"https://example.com/b.mp4",
	}, inputs)

	assert.False(t, (&options{}).hasInput())
	_, err = (&options{urlFilePath: filepath.Join(dir, "missing")}).inputs()
	assert.Error(t, err)
}

func TestBuildServices(t *testing.T) {
	cfg := config.Default()
	cfg.Aggregate.Externals = append(cfg.Aggregate.Externals, "unknown")
	svc := buildServices(cfg)

	formats := svc.registry.SupportedFormats()
	assert.Contains(t, formats, ".png")
	assert.Contains(t, formats, ".wav")
	assert.Contains(t, formats, ".mkv")
	assert.NotNil(t, svc.reputation)

	for _, mode := range []string{ModeLSB, ModeAggregate, ModeSecurity, ModeLegacy} {
		assert.NotNil(t, svc.task(mode), mode)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, writeReport(path, []pipeline.Result{{Input: "a.png", Error: "boom"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"input": "a.png"`)
	assert.Contains(t, string(data), `"error": "boom"`)
}
