package neo4jdb

import (
	"context"
	"testing"

	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

func TestNewWithoutURIIsDisabled(t *testing.T) {
	c, err := New(Config{}, logger.Nop())
	if err != nil || c != nil {
		t.Fatalf("New(empty): client=%v err=%v", c, err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close(nil): %v", err)
	}
	if _, err := New(Config{URI: "bolt://x"}, nil); err == nil {
		t.Fatalf("expected error without logger")
	}
}
