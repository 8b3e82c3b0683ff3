package tus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/omero-biomero/tusgate/internal/logger"
)

const (
	statCreated       = "uploads_created"
	statFinished      = "uploads_finished"
	statFinishedBytes = "bytes_finished"
	statTerminated    = "uploads_terminated"
	statReaped        = "uploads_reaped"
	statBytesReceived = "bytes_received"
)

var (
	uploadsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tusgate_uploads_created_total",
		Help: "Number of created uploads.",
	})
	uploadsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tusgate_uploads_finished_total",
		Help: "Number of uploads moved to their destination.",
	})
	uploadsTerminated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tusgate_uploads_terminated_total",
		Help: "Number of uploads cancelled by their owner.",
	})
	uploadsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tusgate_uploads_reaped_total",
		Help: "Number of stale uploads removed by the reaper.",
	})
	bytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tusgate_bytes_received_total",
		Help: "Number of bytes written to byte stores.",
	})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tusgate_errors_total",
		Help: "Number of error responses by status code.",
	}, []string{"status"})
)

func incErrorsTotal(statusCode int) {
	errorsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (handler *Handler) logEvent(event string, info UploadInfo, fields logrus.Fields) {
	entry := logger.Uploads.WithFields(logrus.Fields{
		"event":  event,
		"id":     info.ID,
		"owner":  info.OwnerID,
		"offset": info.Offset,
		"length": info.Length,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info(event)
}
