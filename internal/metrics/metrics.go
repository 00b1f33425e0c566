// Package metrics exposes message bus and plugin manager statistics to
// Prometheus.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/pluginhost/internal/event"
	"github.com/dshills/pluginhost/internal/event/events"
	"github.com/dshills/pluginhost/internal/plugin"
)

const namespace = "pluginhost"

// BusStats is the part of event.Bus the collector reads.
type BusStats interface {
	Stats() event.Stats
}

// PluginStats is the part of plugin.Manager the collector reads.
type PluginStats interface {
	Stats() plugin.Stats
}

var (
	busPublishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "messages_published_total"),
		"Total number of messages published.", nil, nil)
	busDeliveredDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "messages_delivered_total"),
		"Total number of successful handler invocations.", nil, nil)
	busExecutedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "handlers_executed_total"),
		"Total number of handler invocations.", nil, nil)
	busFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "handler_failures_total"),
		"Handler failures by kind.", []string{"kind"}, nil)
	busSubscriptionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "subscriptions"),
		"Current number of subscriptions.", nil, nil)

	pluginsRegisteredDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "plugins", "registered"),
		"Number of registered plugins.", nil, nil)
	pluginsActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "plugins", "active"),
		"Number of active plugins.", nil, nil)
	pluginActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "plugin", "active"),
		"Whether a registered plugin is active (1) or not (0).",
		[]string{"plugin", "version", "state"}, nil)
)

// Collector reads bus and manager statistics at scrape time.
// Either source may be nil.
type Collector struct {
	bus     BusStats
	plugins PluginStats

	lifecycle *prometheus.CounterVec

	mu         sync.Mutex
	subscriber *event.Subscriber
}

// NewCollector creates a collector over the given sources.
func NewCollector(bus BusStats, plugins PluginStats) *Collector {
	return &Collector{
		bus:     bus,
		plugins: plugins,
		lifecycle: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "plugin",
				Name:      "lifecycle_events_total",
				Help:      "Plugin lifecycle messages seen on the bus.",
			},
			[]string{"type"},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- busPublishedDesc
	ch <- busDeliveredDesc
	ch <- busExecutedDesc
	ch <- busFailuresDesc
	ch <- busSubscriptionsDesc
	ch <- pluginsRegisteredDesc
	ch <- pluginsActiveDesc
	ch <- pluginActiveDesc
	c.lifecycle.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.bus != nil {
		s := c.bus.Stats()
		ch <- prometheus.MustNewConstMetric(busPublishedDesc, prometheus.CounterValue, float64(s.MessagesPublished))
		ch <- prometheus.MustNewConstMetric(busDeliveredDesc, prometheus.CounterValue, float64(s.MessagesDelivered))
		ch <- prometheus.MustNewConstMetric(busExecutedDesc, prometheus.CounterValue, float64(s.HandlersExecuted))
		ch <- prometheus.MustNewConstMetric(busFailuresDesc, prometheus.CounterValue, float64(s.HandlerErrors), "error")
		ch <- prometheus.MustNewConstMetric(busFailuresDesc, prometheus.CounterValue, float64(s.HandlerPanics), "panic")
		ch <- prometheus.MustNewConstMetric(busFailuresDesc, prometheus.CounterValue, float64(s.HandlerTimeouts), "timeout")
		ch <- prometheus.MustNewConstMetric(busFailuresDesc, prometheus.CounterValue, float64(s.FilterPanics), "filter_panic")
		ch <- prometheus.MustNewConstMetric(busSubscriptionsDesc, prometheus.GaugeValue, float64(s.ActiveSubscriptions))
	}

	if c.plugins != nil {
		s := c.plugins.Stats()
		ch <- prometheus.MustNewConstMetric(pluginsRegisteredDesc, prometheus.GaugeValue, float64(s.Total))
		ch <- prometheus.MustNewConstMetric(pluginsActiveDesc, prometheus.GaugeValue, float64(s.Active))
		for _, p := range s.Plugins {
			var active float64
			if p.Active {
				active = 1
			}
			ch <- prometheus.MustNewConstMetric(pluginActiveDesc, prometheus.GaugeValue, active,
				p.Name, p.Version, p.State.String())
		}
	}

	c.lifecycle.Collect(ch)
}

// WatchLifecycle counts plugin lifecycle messages published on bus.
// Calling it again replaces the previous subscriptions.
func (c *Collector) WatchLifecycle(bus event.Bus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscriber != nil {
		c.subscriber.UnsubscribeAll()
	}
	sub := event.NewSubscriber(bus)
	for _, msgType := range events.LifecycleTypes {
		counter := c.lifecycle.WithLabelValues(msgType)
		_, err := sub.SubscribeFunc(msgType, func(ctx context.Context, msg event.Message) error {
			counter.Inc()
			return nil
		}, event.WithPriority(event.PriorityLow))
		if err != nil {
			sub.UnsubscribeAll()
			return err
		}
	}
	c.subscriber = sub
	return nil
}

// Close drops the lifecycle subscriptions.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscriber == nil {
		return nil
	}
	err := c.subscriber.Close()
	c.subscriber = nil
	return err
}

// NewRegistry returns a registry holding c and the Go runtime and process
// collectors.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler returns an HTTP handler exposing the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
