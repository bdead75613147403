package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

func TestNew(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"", "rod"},
		{"rod", "rod"},
		{"chromedp", "chromedp"},
		{"playwright", "playwright"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := New(config.BrowserConfig{Driver: tt.driver})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := New(config.BrowserConfig{Driver: "selenium"})
	assert.EqualError(t, err, `unknown browser driver "selenium"`)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"deadline", fmt.Errorf("eval: %w", context.DeadlineExceeded), models.ErrCodeTimeout},
		{"canceled", context.Canceled, models.ErrCodeTimeout},
		{"other", errors.New("net::ERR_NAME_NOT_RESOLVED"), models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := categorizeError(tt.err, "navigation to target URL failed")
			assert.Equal(t, tt.code, se.Code)
			assert.ErrorIs(t, se, tt.err)
		})
	}
}

func TestBlockedSet(t *testing.T) {
	got := blockedSet([]string{"Image", "Font", "Script", "bogus"})
	assert.Len(t, got, 2)
	assert.Contains(t, got, proto.NetworkResourceTypeImage)
	assert.Contains(t, got, proto.NetworkResourceTypeFont)

	pw := blockedPlaywrightTypes([]string{"Image", "Stylesheet"})
	assert.Equal(t, map[string]struct{}{"image": {}, "stylesheet": {}}, pw)
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"Accept-Language": "en-US"})
	require.Contains(t, m, "Accept-Language")
	assert.Equal(t, "en-US", m["Accept-Language"].Str())
}
