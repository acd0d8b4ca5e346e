package s0_data

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	files map[string]string
	calls []string
}

func (d *fakeDownloader) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	d.calls = append(d.calls, url)
	body, ok := d.files[url]
	if !ok {
		return 0, fmt.Errorf("404 %s", url)
	}
	n, err := io.WriteString(w, body)
	return int64(n), err
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://data.example.com/bars.csv"))
	assert.True(t, IsRemote("HTTP://host/bars.parquet"))
	assert.False(t, IsRemote("/data/bars.csv"))
	assert.False(t, IsRemote("s3://bucket/bars.csv"))
}

func TestRemoteSource_Load(t *testing.T) {
	dir := t.TempDir()
	instPath := filepath.Join(dir, "instruments.csv")
	require.NoError(t, os.WriteFile(instPath, []byte("id,sector\n600001,bank\n"), 0o644))

	dl := &fakeDownloader{files: map[string]string{
		"https://data.example.com/bars.csv?token=x": barsCSV,
	}}

	src, err := NewRemoteSource("", Paths{
		Bars:        "https://data.example.com/bars.csv?token=x",
		Instruments: instPath,
	}, dl)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, src.format)

	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds.Bars, 3)
	assert.Len(t, ds.Instruments, 1)
	assert.Equal(t, []string{"https://data.example.com/bars.csv?token=x"}, dl.calls)
}

func TestRemoteSource_Errors(t *testing.T) {
	dl := &fakeDownloader{}

	_, err := NewRemoteSource("", Paths{}, dl)
	assert.Error(t, err)

	_, err = NewRemoteSource("", Paths{Bars: "https://x/bars.csv"}, nil)
	assert.Error(t, err)

	src, err := NewRemoteSource("", Paths{Bars: "https://x/bars.parquet"}, dl)
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, src.format)

	_, err = src.Load(context.Background())
	assert.ErrorContains(t, err, "fetch https://x/bars.parquet")
}
