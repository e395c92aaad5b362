package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission results
const (
	resultAccepted        = "accepted"
	resultQuotaExceeded   = "quota_exceeded"
	resultNotConfigured   = "not_configured"
	resultBusy            = "busy"
	resultBlobWrite       = "blob_write_failed"
	resultMetadataPersist = "metadata_persist_failed"
	resultError           = "error"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebox_uploads_total",
			Help: "Upload admission decisions by result",
		},
		[]string{"result"},
	)

	uploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharebox_uploaded_bytes_total",
			Help: "Bytes of accepted uploads",
		},
	)

	blobCleanupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebox_blob_cleanup_total",
			Help: "Deletions of rejected or orphaned blobs by result",
		},
		[]string{"result"},
	)
)
