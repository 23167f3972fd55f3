package scrape

import (
	"context"
	"strings"
	"time"

	"lienharvest/pkg/browser"
)

const fieldProbeTimeout = 2 * time.Second

// FieldStrategy is one way to locate a labeled value on the detail panel.
type FieldStrategy func(ctx context.Context, page browser.Page, site *Site, label string) (string, error)

// definedTermStrategy reads the value through the explicit dt/dd relation.
func definedTermStrategy(ctx context.Context, page browser.Page, site *Site, label string) (string, error) {
	locator := site.FieldValue(label)
	if err := page.WaitVisible(ctx, locator, fieldProbeTimeout); err != nil {
		return "", err
	}
	return page.Text(ctx, locator)
}

// siblingScanStrategy walks the children of the element containing the
// label text and returns the sibling immediately after the label.
func siblingScanStrategy(ctx context.Context, page browser.Page, site *Site, label string) (string, error) {
	count, err := siblingCount(ctx, page, site, label)
	if err != nil {
		return "", err
	}
	for i := 0; i < count-1; i++ {
		text, err := page.Text(ctx, site.FieldSibling(label, i))
		if err != nil {
			continue
		}
		if strings.Contains(text, label) {
			return page.Text(ctx, site.FieldSibling(label, i+1))
		}
	}
	return "", nil
}

func siblingCount(ctx context.Context, page browser.Page, site *Site, label string) (int, error) {
	return page.Count(ctx, site.FieldGroup(label)+" >> child")
}

// defaultStrategies is the ordered lookup list: structural first, then
// positional fallback.
var defaultStrategies = []FieldStrategy{definedTermStrategy, siblingScanStrategy}

// extractField tries each strategy in order; the first non-empty result
// wins. A field no strategy can locate is an empty string, never an error:
// one missing field must not fail a row.
func extractField(ctx context.Context, page browser.Page, site *Site, label string, strategies ...FieldStrategy) string {
	if len(strategies) == 0 {
		strategies = defaultStrategies
	}
	for _, strategy := range strategies {
		value, err := strategy(ctx, page, site, label)
		if err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
