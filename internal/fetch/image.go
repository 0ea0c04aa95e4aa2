package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/maltedev/sneaker-dataset-scraper/internal/logger"
)

// imageQuery asks the CDN for a 300x214 white-filled, color-trimmed, q90 rendition at 2x density.
const imageQuery = "fit=fill&bg=FFFFFF&w=300&h=214&auto=format,compress&trim=color&q=90&dpr=2"

// ImageURL replaces any query string on src with the dataset rendition parameters.
func ImageURL(src string) string {
	if i := strings.Index(src, "?"); i >= 0 {
		src = src[:i]
	}
	return src + "?" + imageQuery
}

// DownloadImage fetches the dataset rendition of url and writes it to destination.
func (c *Client) DownloadImage(ctx context.Context, url, destination string) error {
	downloadURL := ImageURL(url)
	logger.Trace(ctx, c.logger, "downloading image", "url", downloadURL, "destination", destination)

	resp, err := c.Do(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create image file %s: %w", destination, err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(destination)
		return fmt.Errorf("failed to write image file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(destination)
		return fmt.Errorf("failed to close image file: %w", err)
	}

	return nil
}
