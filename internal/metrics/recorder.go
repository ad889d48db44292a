package metrics

import (
	"fmt"

	"clipbot/internal/bus"
	"clipbot/internal/domain"
)

// Recorder turns bot events into metrics.
type Recorder struct {
	c *Collector

	updates      *Counter
	active       *Gauge
	extractions  *Histogram
	outcomeHelp  string
	outcomeName  string
	extractsName string
}

var latencyBuckets = []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600}

// NewRecorder registers the bot's metrics on c.
func NewRecorder(c *Collector) *Recorder {
	return &Recorder{
		c:            c,
		updates:      c.Counter("clipbot_updates_received_total", "Inbound chat updates dequeued", ""),
		active:       c.Gauge("clipbot_active_downloads", "Requests between acknowledgment and final status", ""),
		extractions:  c.Histogram("clipbot_extraction_seconds", "Extraction latency in seconds", "", latencyBuckets),
		outcomeName:  "clipbot_deliveries_total",
		outcomeHelp:  "Finished requests by outcome",
		extractsName: "clipbot_extractions_total",
	}
}

// Subscribe attaches the recorder to the event bus.
func (r *Recorder) Subscribe(events *bus.EventBus) {
	events.On(bus.EventUpdateReceived, func(bus.Event) { r.updates.Inc() })
	events.On(bus.EventDeliveryStarted, func(bus.Event) { r.active.Inc() })
	events.On(bus.EventExtractionFinished, func(e bus.Event) {
		rep, ok := e.Payload.(domain.ExtractionReport)
		if !ok {
			return
		}
		r.ObserveExtraction(rep)
	})
	events.On(bus.EventDeliveryFinished, func(e bus.Event) {
		rec, ok := e.Payload.(domain.DownloadRecord)
		if !ok {
			return
		}
		if rec.Outcome != domain.OutcomeNotRequest && rec.Outcome != domain.OutcomeRateLimited {
			r.active.Dec()
		}
		r.Outcome(rec.Outcome).Inc()
	})
}

// Outcome returns the counter for one outcome.
func (r *Recorder) Outcome(o domain.Outcome) *Counter {
	return r.c.Counter(r.outcomeName, r.outcomeHelp, fmt.Sprintf("outcome=%q", string(o)))
}

// ObserveExtraction records one extraction's latency and result.
func (r *Recorder) ObserveExtraction(rep domain.ExtractionReport) {
	r.extractions.Observe(rep.Duration.Seconds())
	result := "ok"
	if !rep.OK {
		result = "error"
	}
	r.c.Counter(r.extractsName, "Extraction calls by category and result",
		fmt.Sprintf("category=%q,result=%q", string(rep.Category), result)).Inc()
}
