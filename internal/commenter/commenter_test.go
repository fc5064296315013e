package commenter

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramkeeper/internal/browser"
)

func TestPublishCommentRejectsEmptyText(t *testing.T) {
	c := New(nil, t.TempDir())

	_, err := c.PublishComment(context.Background(), "ABC123", "   ")
	assert.Error(t, err)
}

// Requires a real Chrome and a saved login session; only runs when
// COMMENTER_INTEGRATION names a shortcode to comment on.
func TestPublishCommentIntegration(t *testing.T) {
	shortcode := os.Getenv("COMMENTER_INTEGRATION")
	if shortcode == "" {
		t.Skip("COMMENTER_INTEGRATION not set")
	}

	mgr := browser.NewSessionManager(browser.DefaultConfig(os.Getenv("DATA_DIR")))
	require.True(t, mgr.HasSession(), "saved session required")

	c := New(mgr, t.TempDir())
	res, err := c.PublishComment(context.Background(), shortcode, "test comment")
	require.NoError(t, err)
	t.Logf("liked=%v", res.Liked)
}
