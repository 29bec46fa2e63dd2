package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Generator
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return tryInOrder(ctx, "generator", len(g.items), func(i int) (string, bool) {
		return g.items[i].Name, g.items[i].Generator != nil
	}, func(i int) (string, error) {
		return g.items[i].Generator.Generate(ctx, prompt)
	})
}

// tryInOrder calls each configured entry until one succeeds. Entries that
// report ErrUnavailable (missing key, disabled provider) are skipped quietly;
// if every entry was unavailable the result wraps ErrUnavailable.
func tryInOrder[T any](ctx context.Context, kind string, n int, entry func(i int) (string, bool), call func(i int) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for i := 0; i < n; i++ {
		name, ok := entry(i)
		if !ok {
			continue
		}
		res, err := call(i)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrUnavailable) {
			logutil.GetLogger(ctx).Debug(kind+" unavailable, trying next", zap.String("name", name))
			if lastErr == nil {
				lastErr = err
			}
			continue
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn(kind+" failed", zap.Int("index", i), zap.String("name", name), zap.Error(err))
	}
	if lastErr == nil {
		return zero, fmt.Errorf("%s not configured: %w", kind, ErrUnavailable)
	}
	return zero, lastErr
}
