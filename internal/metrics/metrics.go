package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sneaker_records_dropped_total",
			Help: "Records rejected during normalization",
		},
		[]string{"reason"},
	)

	Models = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sneaker_models_total",
			Help: "Unique models processed by outcome (scraped, failed, skipped)",
		},
		[]string{"outcome"},
	)

	ImagesDownloaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sneaker_images_downloaded_total",
			Help: "Images written to the dataset before verification",
		},
	)

	DuplicatesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sneaker_images_duplicates_removed_total",
			Help: "Downloaded images removed because their checksum already existed",
		},
	)

	CorruptedRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sneaker_images_corrupted_removed_total",
			Help: "Images removed because they could not be decoded",
		},
	)

	FetchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sneaker_fetch_retries_total",
			Help: "HTTP attempts that failed and were retried, by status",
		},
		[]string{"status"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RecordsDropped,
		Models,
		ImagesDownloaded,
		DuplicatesRemoved,
		CorruptedRemoved,
		FetchRetries,
	}
}

// MustRegister registers every scraper collector with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(collectors()...)
}
