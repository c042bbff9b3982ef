package engine

import (
	"context"
	"fmt"
)

// RenderFunc fetches target through a rendering backend (a headless browser).
// It is injected from main.go so engine/ never imports scraper/.
type RenderFunc func(ctx context.Context, target string, stealth bool) (string, error)

// RenderStrategy delegates to a rendering backend. The stealth flag
// distinguishes "render" from "render-stealth".
type RenderStrategy struct {
	fetchFunc RenderFunc
	stealth   bool
	name      string
}

// NewRenderStrategy creates a RenderStrategy.
func NewRenderStrategy(fetchFunc RenderFunc, stealth bool) *RenderStrategy {
	name := "render"
	if stealth {
		name = "render-stealth"
	}
	return &RenderStrategy{
		fetchFunc: fetchFunc,
		stealth:   stealth,
		name:      name,
	}
}

func (s *RenderStrategy) Name() string { return s.name }

func (s *RenderStrategy) Fetch(ctx context.Context, target string) (string, error) {
	if s.fetchFunc == nil {
		return "", fmt.Errorf("render backend not configured")
	}
	return s.fetchFunc(ctx, target, s.stealth)
}
