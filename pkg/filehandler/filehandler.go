package filehandler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"MediaSteGo/pkg/models"
)

/*
File explanation:
This file maps file extensions onto media categories and handles the file plumbing around an analysis:
reading inputs with a size limit, staging in-memory buffers to temp files for the ffmpeg based paths,
downloading remote media and collecting files from directories.
*/

// MaxFileSize bounds every file read or download
const MaxFileSize = 100 * 1024 * 1024

// ImageFormats maps image extensions to their format names
var ImageFormats = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".webp": "webp",
	".bmp":  "bmp",
	".tiff": "tiff",
	".tif":  "tiff",
	".ico":  "ico",
	".heic": "heic",
	".heif": "heif",
	".svg":  "svg",
	".avif": "avif",
}

// AudioFormats maps audio extensions to their format names
var AudioFormats = map[string]string{
	".mp3":  "mp3",
	".wav":  "wav",
	".aac":  "aac",
	".flac": "flac",
	".ogg":  "ogg",
	".amr":  "amr",
}

// VideoFormats maps video extensions to their format names
var VideoFormats = map[string]string{
	".mp4":  "mp4",
	".avi":  "avi",
	".mkv":  "matroska",
	".mov":  "quicktime",
	".webm": "webm",
	".flv":  "flv",
	".m4v":  "mp4",
	".3gp":  "3gp",
}

// LossyFormats are extensions whose codecs discard LSB detail on encode
var LossyFormats = map[string]bool{
	".jpg": true, ".jpeg": true, ".webp": true, ".heic": true, ".heif": true, ".avif": true,
	".mp3": true, ".aac": true, ".ogg": true, ".amr": true, ".flv": true,
}

// Ext returns the lowercased extension of a file name
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// MediaTypeFor classifies a file name by its extension
func MediaTypeFor(name string) models.MediaType {
	ext := Ext(name)
	switch {
	case ImageFormats[ext] != "":
		return models.MediaImage
	case AudioFormats[ext] != "":
		return models.MediaAudio
	case VideoFormats[ext] != "":
		return models.MediaVideo
	}
	return models.MediaUnknown
}

// IsLossy reports whether the file name has a lossy extension
func IsLossy(name string) bool {
	return LossyFormats[Ext(name)]
}

// SupportedExtensions lists the extensions of a media type, sorted
func SupportedExtensions(mt models.MediaType) []string {
	var src map[string]string
	switch mt {
	case models.MediaImage:
		src = ImageFormats
	case models.MediaAudio:
		src = AudioFormats
	case models.MediaVideo:
		src = VideoFormats
	}
	out := make([]string, 0, len(src))
	for ext := range src {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// AllExtensions lists every supported extension, sorted
func AllExtensions() []string {
	var out []string
	for _, mt := range []models.MediaType{models.MediaImage, models.MediaAudio, models.MediaVideo} {
		out = append(out, SupportedExtensions(mt)...)
	}
	sort.Strings(out)
	return out
}

// DetectExtension guesses an extension from the leading bytes of a file.
// Returns "" when the content type is not a supported media type.
func DetectExtension(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	contentType := http.DetectContentType(data)

	switch {
	case strings.Contains(contentType, "image/png"):
		return ".png"
	case strings.Contains(contentType, "image/jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "image/gif"):
		return ".gif"
	case strings.Contains(contentType, "image/bmp"):
		return ".bmp"
	case strings.Contains(contentType, "image/webp"):
		return ".webp"
	case strings.Contains(contentType, "image/x-icon"):
		return ".ico"
	case strings.Contains(contentType, "audio/wave"):
		return ".wav"
	case strings.Contains(contentType, "audio/mpeg"):
		return ".mp3"
	case strings.Contains(contentType, "application/ogg"):
		return ".ogg"
	case strings.Contains(contentType, "video/mp4"):
		return ".mp4"
	case strings.Contains(contentType, "video/webm"):
		return ".webm"
	case strings.Contains(contentType, "video/avi"):
		return ".avi"
	}
	return ""
}

// ReadFileBytes reads a file and returns its content as a byte array
func ReadFileBytes(filePath string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	size := info.Size()
	if size > MaxFileSize {
		return nil, fmt.Errorf("file too large (max 100MB)")
	}

	content := make([]byte, size)
	if _, err := io.ReadFull(file, content); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}

// StageTemp writes data to a uniquely named temp file carrying ext.
// The returned cleanup removes the file and is safe to call more than once.
func StageTemp(data []byte, ext string) (string, func(), error) {
	name := filepath.Join(os.TempDir(), "mediastego_"+uuid.NewString()+ext)

	file, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(name) }

	if _, err := file.Write(data); err != nil {
		file.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to close temp file: %w", err)
	}

	return name, cleanup, nil
}

// IsURL checks if the given string is a URL
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// DownloadFile downloads a URL into outputDir and returns the saved path.
// A missing or unsupported extension is replaced by one sniffed from the content.
func DownloadFile(ctx context.Context, rawURL, outputDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	client := &http.Client{
		Timeout: 60 * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}
	if resp.ContentLength > MaxFileSize {
		return "", fmt.Errorf("file too large (max 100MB)")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("file too large (max 100MB)")
	}

	filename := path.Base(u.Path)
	if filename == "." || filename == "/" || filename == "" {
		filename = uuid.NewString()
	}
	if MediaTypeFor(filename) == models.MediaUnknown {
		if ext := DetectExtension(data); ext != "" {
			filename += ext
		}
	}

	outputPath := filepath.Join(outputDir, filename)
	if err := SaveFile(data, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// SaveFile saves data to a file
func SaveFile(data []byte, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}

// FilesInDirectory walks a directory and returns the files with a supported media extension
func FilesInDirectory(dirPath string, recursive bool) ([]string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	var files []string
	err = filepath.WalkDir(dirPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dirPath && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if MediaTypeFor(p) != models.MediaUnknown {
			files = append(files, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
