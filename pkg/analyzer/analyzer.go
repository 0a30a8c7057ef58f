package analyzer

import (
	"context"

	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/models"
)

/*
Analyzer.go contains the interface and base implementation for media analyzers.
FileAnalyzer: interface every media analyzer implements; Analyze never fails, it returns a verdict with Error set instead.
Input: one file handed to an analyzer, as bytes, as a path on disk, or both.
BaseAnalyzer: struct provides the common name, description, media type and format bookkeeping.
*/

// Input is one file to analyse. Image analyzers read Data; the ffmpeg backed paths need
// Path, which the dispatcher fills by staging Data to a temp file when necessary.
type Input struct {
	Data     []byte
	Path     string
	Filename string
}

// Ext returns the lowercased extension of the input's file name
func (in Input) Ext() string {
	return filehandler.Ext(in.Filename)
}

// FileAnalyzer is the interface that all media analyzers must implement
type FileAnalyzer interface {
	// CanAnalyze checks if this analyzer can handle the given extension
	CanAnalyze(ext string) bool

	// Analyze inspects one file. Failures are reported in the verdict's Error field.
	Analyze(ctx context.Context, in Input) *models.Verdict

	// Name returns the name of the analyzer
	Name() string

	// Description returns a detailed description of what the analyzer does
	Description() string

	// MediaType returns the media category the analyzer handles
	MediaType() models.MediaType

	// SupportedFormats returns the extensions this analyzer supports
	SupportedFormats() []string
}

// BaseAnalyzer provides common functionality for analyzers
type BaseAnalyzer struct {
	name        string
	description string
	mediaType   models.MediaType
	formats     []string
}

// NewBaseAnalyzer creates a new BaseAnalyzer
func NewBaseAnalyzer(name, description string, mediaType models.MediaType, formats []string) BaseAnalyzer {
	return BaseAnalyzer{
		name:        name,
		description: description,
		mediaType:   mediaType,
		formats:     formats,
	}
}

// Name returns the analyzer name
func (b *BaseAnalyzer) Name() string {
	return b.name
}

// Description returns the analyzer description
func (b *BaseAnalyzer) Description() string {
	return b.description
}

// MediaType returns the media category
func (b *BaseAnalyzer) MediaType() models.MediaType {
	return b.mediaType
}

// SupportedFormats returns the supported extensions
func (b *BaseAnalyzer) SupportedFormats() []string {
	return b.formats
}

// CanAnalyze checks if the analyzer supports the given extension
func (b *BaseAnalyzer) CanAnalyze(ext string) bool {
	for _, f := range b.formats {
		if f == ext {
			return true
		}
	}
	return false
}
