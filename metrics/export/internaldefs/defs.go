package internaldefs

import (
	"github.com/MrEthical07/magiclink"
)

// CounterDef binds a counter metric id to its exported name.
type CounterDef struct {
	ID   magiclink.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency histogram id to its exported name.
type HistogramDef struct {
	ID   magiclink.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: magiclink.MetricIssueRequest, Name: "magiclink_issue_request_total", Help: "Magic-link issuance requests."},
	{ID: magiclink.MetricIssueSent, Name: "magiclink_issue_sent_total", Help: "Magic links handed to the notifier."},
	{ID: magiclink.MetricIssueSuppressed, Name: "magiclink_issue_suppressed_total", Help: "Issuance requests answered without sending a link."},
	{ID: magiclink.MetricIssueDeliveryFailed, Name: "magiclink_issue_delivery_failed_total", Help: "Notifier failures during issuance."},
	{ID: magiclink.MetricUserProvisioned, Name: "magiclink_user_provisioned_total", Help: "Users created during issuance."},
	{ID: magiclink.MetricConsumeSuccess, Name: "magiclink_consume_success_total", Help: "Completed link consumptions."},
	{ID: magiclink.MetricConsumeFailure, Name: "magiclink_consume_failure_total", Help: "Failed link consumptions."},
	{ID: magiclink.MetricConsumeReplay, Name: "magiclink_consume_replay_total", Help: "Consumptions rejected because the link was already used."},
	{ID: magiclink.MetricConsumeExpired, Name: "magiclink_consume_expired_total", Help: "Expired links presented for consumption."},
	{ID: magiclink.MetricConsumeTampered, Name: "magiclink_consume_tampered_total", Help: "Malformed or badly signed links."},
	{ID: magiclink.MetricConsumeInvalidRedirect, Name: "magiclink_consume_invalid_redirect_total", Help: "Links whose redirect failed validation at click time."},
	{ID: magiclink.MetricActionTokenDispatched, Name: "magiclink_action_token_dispatched_total", Help: "Action tokens routed to a registered handler."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: magiclink.MetricIssueLatency, Name: "magiclink_issue_latency_seconds", Help: "Issue latency histogram."},
	{ID: magiclink.MetricConsumeLatency, Name: "magiclink_consume_latency_seconds", Help: "Consume latency histogram."},
}

// HistogramBounds are the upper bounds of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
