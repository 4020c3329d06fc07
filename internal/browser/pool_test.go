package browser

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickUserAgentNoRotation(t *testing.T) {
	called := false
	ua := PickUserAgent(false, func(n int) int {
		called = true
		return 3
	})
	assert.Equal(t, userAgents[0], ua)
	assert.False(t, called)
}

func TestPickUserAgentRotation(t *testing.T) {
	for i := range userAgents {
		i := i
		ua := PickUserAgent(true, func(n int) int {
			assert.Equal(t, len(userAgents), n)
			return i
		})
		assert.Equal(t, userAgents[i], ua)
	}
}

func TestJitterViewportBounds(t *testing.T) {
	w, h := JitterViewport(1920, 1080, func(n int) int { return 0 })
	assert.Equal(t, 1870, w)
	assert.Equal(t, 1030, h)

	w, h = JitterViewport(1920, 1080, func(n int) int { return 100 })
	assert.Equal(t, 1970, w)
	assert.Equal(t, 1130, h)
}

func TestUserAgentsLookLikeChrome(t *testing.T) {
	for _, ua := range userAgents {
		assert.Contains(t, ua, "Chrome/")
		assert.False(t, strings.Contains(strings.ToLower(ua), "headless"))
	}
}

func TestStealthScriptHidesWebdriver(t *testing.T) {
	assert.Contains(t, stealthScript, "webdriver")
	assert.Contains(t, stealthScript, "en-AU")
}

// One bad slot shrinks the pool by one; the remaining slots still open.
func TestAcquireSkipsFailedSlot(t *testing.T) {
	calls := 0
	p := &Pool{
		logger: slog.Default(),
		newCtx: func() (playwright.BrowserContext, error) {
			calls++
			if calls == 2 {
				return nil, fmt.Errorf("context crashed")
			}
			return nil, nil
		},
	}

	require.NoError(t, p.Acquire(4))
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, p.Size())
}

func TestAcquireFailsOnlyWhenPoolEmpty(t *testing.T) {
	p := &Pool{
		logger: slog.Default(),
		newCtx: func() (playwright.BrowserContext, error) {
			return nil, fmt.Errorf("no contexts today")
		},
	}

	err := p.Acquire(3)
	assert.Error(t, err)
	assert.Zero(t, p.Size())
}
