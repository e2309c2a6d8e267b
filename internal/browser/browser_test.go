package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, "es-AR", opts.Locale)
	assert.Equal(t, "America/Argentina/Buenos_Aires", opts.TimezoneID)
	assert.ElementsMatch(t, []string{"image", "media", "font"}, opts.BlockResources)
}

func TestContextOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.ExtraHeaders["Accept-Language"] = "en"

	o := contextOptions(opts)

	require.NotNil(t, o.Locale)
	assert.Equal(t, "es-AR", *o.Locale)
	require.NotNil(t, o.TimezoneId)
	assert.Equal(t, opts.TimezoneID, *o.TimezoneId)
	assert.Equal(t, "es-AR,es;q=0.9,en;q=0.8", o.ExtraHttpHeaders["Accept-Language"])
	assert.Contains(t, o.ExtraHttpHeaders["Accept"], "text/html")
	assert.Equal(t, 1366, o.Viewport.Width)

	bare := contextOptions(&Options{})
	assert.Nil(t, bare.UserAgent)
	assert.Nil(t, bare.Locale)
	assert.Empty(t, bare.ExtraHttpHeaders)
}

func TestNavigationTimeout(t *testing.T) {
	assert.Equal(t, 20*time.Second, navigationTimeout(context.Background(), 20*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := navigationTimeout(ctx, 20*time.Second)
	assert.LessOrEqual(t, got, 2*time.Second)
	assert.Positive(t, got)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.Zero(t, navigationTimeout(cancelled, 20*time.Second))
}
