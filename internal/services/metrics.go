package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RAG流水线指标
var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_ingest_total",
		Help: "Total document ingestions by status",
	}, []string{"status"})

	ingestParents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_ingest_parents_total",
		Help: "Total parent segments stored",
	})

	ingestChildren = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_ingest_children_total",
		Help: "Total child vectors indexed",
	})

	chatTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_chat_total",
		Help: "Total chat requests by status",
	}, []string{"status"})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_retrieval_duration_seconds",
		Help:    "Retrieval latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_generation_duration_seconds",
		Help:    "Answer generation latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	consistencyDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_consistency_drops_total",
		Help: "Retrieval hits dropped because the parent segment was missing",
	})
)
