package filehandler

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MediaSteGo/pkg/models"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestMediaTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want models.MediaType
	}{
		{"photo.JPG", models.MediaImage},
		{"scan.tif", models.MediaImage},
		{"icon.svg", models.MediaImage},
		{"song.flac", models.MediaAudio},
		{"voice.AMR", models.MediaAudio},
		{"clip.mkv", models.MediaVideo},
		{"phone.3gp", models.MediaVideo},
		{"archive.zip", models.MediaUnknown},
		{"noext", models.MediaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MediaTypeFor(tt.name))
		})
	}
}

func TestIsLossy(t *testing.T) {
	assert.True(t, IsLossy("a.jpeg"))
	assert.True(t, IsLossy("a.flv"))
	assert.False(t, IsLossy("a.png"))
	assert.False(t, IsLossy("a.wav"))
}

func TestSupportedExtensions(t *testing.T) {
	assert.Len(t, SupportedExtensions(models.MediaImage), 13)
	assert.Len(t, SupportedExtensions(models.MediaAudio), 6)
	assert.Len(t, SupportedExtensions(models.MediaVideo), 8)
	assert.Empty(t, SupportedExtensions(models.MediaUnknown))
	assert.Len(t, AllExtensions(), 27)
}

func TestDetectExtension(t *testing.T) {
	assert.Equal(t, ".png", DetectExtension(pngBytes(t)))
	assert.Equal(t, "", DetectExtension([]byte("plain text")))
}

func TestStageTemp(t *testing.T) {
	path, cleanup, err := StageTemp([]byte("payload"), ".wav")
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	cleanup()
}

func TestReadFileBytes(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(p, []byte{1, 2, 3}, 0o600))

	data, err := ReadFileBytes(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = ReadFileBytes(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFilesInDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	for _, name := range []string{"a.png", "b.txt", "c.wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(sub, "d.mp4"), nil, 0o600))

	files, err := FilesInDirectory(dir, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "c.wav")}, files)

	files, err = FilesInDirectory(dir, true)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	_, err = FilesInDirectory(filepath.Join(dir, "a.png"), false)
	assert.Error(t, err)
}

func TestReadLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "urls.txt")
	content := "# sources\nhttps://a.example/x.png\n\n  https://b.example/y.wav  \n"
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	lines, err := ReadLines(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/x.png", "https://b.example/y.wav"}, lines)
}

func TestDownloadFile(t *testing.T) {
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()

	p, err := DownloadFile(context.Background(), srv.URL+"/pics/cat.png", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cat.png"), p)

	p, err = DownloadFile(context.Background(), srv.URL+"/download", dir)
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(p), "extension sniffed from content")

	_, err = DownloadFile(context.Background(), srv.URL+"/missing", dir)
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.png"))
	assert.False(t, IsURL("/tmp/a.png"))
}
