package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/fairaudit/internal/metric"
)

// #region server-metrics
type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairaudit",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Metric evaluations served, by metric and status code.",
		}, []string{"metric", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fairaudit",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Time spent evaluating one metric for one group.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
// #endregion server-metrics

// #region server
// Server evaluates built-in metrics on behalf of a distributed report.
type Server struct {
	log       *zap.Logger
	metrics   *serverMetrics
	evaluator metric.Evaluator
}

// NewServer registers the worker's Prometheus collectors on reg.
func NewServer(log *zap.Logger, reg prometheus.Registerer) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m, err := newServerMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Server{
		log:       log.With(zap.String("component", "worker")),
		metrics:   m,
		evaluator: metric.Local{},
	}, nil
}

// Evaluate decodes the request, computes the metric and encodes the result.
// Bad requests and metric failures are InvalidArgument.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	requestID := uuid.New().String()
	name := req.GetFields()["metric"].GetStringValue()
	log := s.log.With(zap.String("request_id", requestID), zap.String("metric", name))

	resp, err := s.evaluate(ctx, req)
	code := status.Code(err)
	s.metrics.requests.WithLabelValues(name, code.String()).Inc()
	s.metrics.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn("evaluate failed", zap.Error(err))
		return nil, err
	}
	log.Debug("evaluated", zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func (s *Server) evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m, in, err := decodeRequest(req)
	if err != nil {
		if errors.Is(err, ErrUnknownMetric) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	r, err := s.evaluator.Evaluate(ctx, m, in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := encodeResult(r)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}
// #endregion server
