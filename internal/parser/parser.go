package parser

import "errors"

var ErrUnsupportedModel = errors.New("unsupported model")

// Normalizer turns a free-text product name and SKU into a canonical
// model identifier and a single variant code.
type Normalizer interface {
	Normalize(productName, sku string) (model string, variant string, err error)
}
