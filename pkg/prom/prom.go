package prom

import (
	"sync"

	xhttp "github.com/nimasrn/rental-gateway/pkg/http"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemRental      = "rental"
	SystemReconcile   = "reconcile"
	SystemReturnQueue = "return_queue"
	SystemNotify      = "notify"
)
const (
	MetricStatusTransitions = "status_transitions_total"
	MetricReconcileDuration = "run_duration_seconds"
	MetricReconcileItems    = "items_total"
	MetricReturnEvents      = "events_total"
	MetricQueueDepth        = "depth"
	MetricDeliveries        = "deliveries_total"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogram = make(map[string]prometheus.Histogram)

var defaultLabels prometheus.Labels

var metricHelp = map[string]string{
	SystemRental + MetricStatusTransitions:    "Rental header and line status transitions.",
	SystemReconcile + MetricReconcileDuration: "Duration of batch reconcile runs.",
	SystemReconcile + MetricReconcileItems:    "Reconcile items applied, by result.",
	SystemReturnQueue + MetricReturnEvents:    "Return events consumed from the queue, by result.",
	SystemReturnQueue + MetricQueueDepth:      "Messages in the return stream, total and pending.",
	SystemNotify + MetricDeliveries:           "Transition webhook deliveries, by result.",
}

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemRental, MetricStatusTransitions, []string{"level", "from", "to", "reason"}))
	hasError(createHistogram(SystemReconcile, MetricReconcileDuration))
	hasError(createCounterVec(SystemReconcile, MetricReconcileItems, []string{"result"}))
	hasError(createCounterVec(SystemReturnQueue, MetricReturnEvents, []string{"result"}))
	hasError(createGaugeVec(SystemReturnQueue, MetricQueueDepth, []string{"queue", "state"}))
	hasError(createCounterVec(SystemNotify, MetricDeliveries, []string{"result"}))

	return err
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func helpText(subsystem, name string) string {
	if h, ok := metricHelp[subsystem+name]; ok {
		return h
	}
	return subsystem + " " + name
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounterVec[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        helpText(subsystem, name),
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionCounterVec[subsystem+name])
}

func createHistogram(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogram[subsystem+name] = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        helpText(subsystem, name),
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	return prometheus.Register(MetricCollectionHistogram[subsystem+name])
}

func createGaugeVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionGaugeVec[subsystem+name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        helpText(subsystem, name),
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionGaugeVec[subsystem+name])
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogram(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogram[subsystem+name]; ok {
		v.Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

// AddStatusTransition counts one header or line transition. from is "NONE" for a first status.
func AddStatusTransition(level, from, to, reason string) {
	IncCounterVec(SystemRental, MetricStatusTransitions, level, from, to, reason)
}

func AddReconcileDuration(seconds float64) {
	AddHistogram(SystemReconcile, MetricReconcileDuration, seconds)
}

// IncReconcileItem counts one applied batch item by result ("success" or "failure").
func IncReconcileItem(result string) {
	IncCounterVec(SystemReconcile, MetricReconcileItems, result)
}

func IncReturnEvent(result string) {
	IncCounterVec(SystemReturnQueue, MetricReturnEvents, result)
}

// SetQueueDepth records the stream length and the messages delivered but not yet acked.
func SetQueueDepth(queue string, total, pending int64) {
	SetGaugeVec(SystemReturnQueue, MetricQueueDepth, float64(total), queue, "total")
	SetGaugeVec(SystemReturnQueue, MetricQueueDepth, float64(pending), queue, "pending")
}

func IncNotification(result string) {
	IncCounterVec(SystemNotify, MetricDeliveries, result)
}
