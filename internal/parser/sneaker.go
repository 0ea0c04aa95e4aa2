package parser

import (
	"fmt"
	"log/slog"
	"strings"
)

var (
	brandPrefixes = []string{"nike", "jordan", "air"}

	// checked in this order; a later hit replaces an earlier one
	sizeClasses = []string{"low", "high", "mid"}

	pathSeparators = `/\`

	prefixRewrites = map[string]string{
		"air":    "nike_air",
		"jordan": "nike_jordan",
	}
)

type SneakerNormalizer struct {
	excluded []string
	logger   *slog.Logger
}

func NewSneakerNormalizer(excluded []string, logger *slog.Logger) *SneakerNormalizer {
	lowered := make([]string, 0, len(excluded))
	for _, kw := range excluded {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}

	return &SneakerNormalizer{
		excluded: lowered,
		logger:   logger.With("component", "normalizer"),
	}
}

// Normalize maps e.g. ("Jordan 1 Low Fragment x Travis Scott", "315122-111/CW2288-111")
// to ("nike_jordan_1_low", "CW2288-111").
func (n *SneakerNormalizer) Normalize(productName, sku string) (string, string, error) {
	model, err := n.Model(productName)
	if err != nil {
		n.logger.Debug("rejected product", "name", productName, "sku", sku, "error", err)
		return "", "", err
	}

	variant := Variant(sku)
	if err := checkPathComponent(model, variant); err != nil {
		n.logger.Debug("rejected product", "name", productName, "sku", sku, "error", err)
		return "", "", err
	}
	n.logger.Debug("normalized product", "name", productName, "model", model, "variant", variant)

	return model, variant, nil
}

func (n *SneakerNormalizer) Model(productName string) (string, error) {
	lowered := strings.ToLower(productName)
	tokens := strings.Split(lowered, " ")

	if !contains(brandPrefixes, tokens[0]) {
		return "", fmt.Errorf("%w: %s models are not supported yet", ErrUnsupportedModel, tokens[0])
	}

	for _, kw := range n.excluded {
		if strings.Contains(lowered, kw) {
			return "", fmt.Errorf("%w: %q line is excluded: %s", ErrUnsupportedModel, kw, productName)
		}
	}

	end := -1
	for _, class := range sizeClasses {
		if i := indexOf(tokens, class); i >= 0 {
			end = i
		}
	}
	if end < 0 {
		return "", fmt.Errorf("%w: couldn't determine product ending: %s", ErrUnsupportedModel, productName)
	}

	parts := append([]string(nil), tokens[:end+1]...)
	if rewrite, ok := prefixRewrites[parts[0]]; ok {
		parts[0] = rewrite
	}

	return strings.Join(parts, "_"), nil
}

// Variant picks the last code when a product lists several, e.g. 315122-111/CW2288-111.
func Variant(sku string) string {
	if i := strings.LastIndex(sku, "/"); i >= 0 {
		return sku[i+1:]
	}
	return sku
}

// model and variant each name exactly one directory below the dataset root.
func checkPathComponent(model, variant string) error {
	if strings.ContainsAny(model, pathSeparators) {
		return fmt.Errorf("%w: model %q is not a single path component", ErrUnsupportedModel, model)
	}
	switch {
	case variant == "", variant == ".", variant == "..", strings.ContainsAny(variant, pathSeparators):
		return fmt.Errorf("%w: variant %q is not a single path component", ErrUnsupportedModel, variant)
	}
	return nil
}

func indexOf(tokens []string, s string) int {
	for i, t := range tokens {
		if t == s {
			return i
		}
	}
	return -1
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}
