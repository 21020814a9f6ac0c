package prom

import (
	"gfx.cafe/open/gotoprom"
	"github.com/prometheus/client_golang/prometheus"
)

type ListenerLabels struct {
	ListenAddr string `label:"listen_addr"`
}

var Listener struct {
	Incoming func(ListenerLabels) prometheus.Counter `name:"incoming" help:"incoming connections"`
	Accepted func(ListenerLabels) prometheus.Counter `name:"accepted" help:"accepted connections"`
	Rejected func(ListenerLabels) prometheus.Counter `name:"rejected" help:"connections rejected for lack of a free customer slot"`
}

type ToolLabels struct {
	ToolID string `label:"tool_id"`
}

var Tools struct {
	Utilization func(ToolLabels) prometheus.Counter `name:"utilization_ms" help:"cumulative tool usage in milliseconds"`
	Preemptions func(ToolLabels) prometheus.Counter `name:"preemptions" help:"times a customer was preempted off this tool"`
}

// NoLabels is used by metrics that need no labels, since gotoprom derives
// a metric's vector arity from the label struct's fields.
type NoLabels struct{}

var Customers struct {
	Resting func(NoLabels) prometheus.Gauge `name:"resting" help:"customers currently resting"`
	Waiting func(NoLabels) prometheus.Gauge `name:"waiting" help:"customers currently queued for a tool"`
	Using   func(NoLabels) prometheus.Gauge `name:"using" help:"customers currently holding a tool"`
}

type CommandLabels struct {
	Command string `label:"command"`
}

var Commands struct {
	Handled  func(CommandLabels) prometheus.Counter   `name:"handled" help:"commands handled, by verb"`
	Rejected func(CommandLabels) prometheus.Counter   `name:"rejected" help:"commands dropped for being malformed, by verb"`
	Latency  func(CommandLabels) prometheus.Histogram `name:"latency_seconds" help:"time spent handling a command, including waiting for the global lock" buckets:""`
}

func init() {
	gotoprom.MustInit(&Listener, "toolshare_listener", prometheus.Labels{})
	gotoprom.MustInit(&Tools, "toolshare_tool", prometheus.Labels{})
	gotoprom.MustInit(&Customers, "toolshare_customer", prometheus.Labels{})
	gotoprom.MustInit(&Commands, "toolshare_command", prometheus.Labels{})
}
