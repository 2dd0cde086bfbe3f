package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsDesc = prometheus.NewDesc("antftp_operations_total",
		"Storage verbs handled, by result.", []string{"result"}, nil)
	bytesDesc = prometheus.NewDesc("antftp_transfer_bytes_total",
		"File bytes served and accepted, by direction.", []string{"direction"}, nil)
	commitsDesc = prometheus.NewDesc("antftp_address_commits_total",
		"Archive addresses committed after mutations.", nil, nil)
	publishDesc = prometheus.NewDesc("antftp_pointer_publishes_total",
		"Pointer updates after mutations, by result.", []string{"result"}, nil)
	syncDesc = prometheus.NewDesc("antftp_sync_ticks_total",
		"Reconciliation ticks, by result.", []string{"result"}, nil)
	throughputDesc = prometheus.NewDesc("antftp_throughput_bytes",
		"Bytes moved per tick, averaged over the last ten ticks.", nil, nil)
	uptimeDesc = prometheus.NewDesc("antftp_uptime_seconds",
		"Seconds since the collector started.", nil, nil)
)

var _ prometheus.Collector = (*Collector)(nil)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		opsDesc, bytesDesc, commitsDesc, publishDesc, syncDesc, throughputDesc, uptimeDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(opsDesc, s.OpsCompleted, "ok")
	counter(opsDesc, s.OpsFailed, "error")
	counter(bytesDesc, s.BytesRead, "read")
	counter(bytesDesc, s.BytesWritten, "written")
	counter(commitsDesc, s.Commits)
	counter(publishDesc, s.Published, "ok")
	counter(publishDesc, s.PublishFailed, "error")
	counter(syncDesc, s.SyncsPushed, "pushed")
	counter(syncDesc, s.SyncsSkipped, "skipped")
	counter(syncDesc, s.SyncsFailed, "error")

	ch <- prometheus.MustNewConstMetric(throughputDesc, prometheus.GaugeValue, c.RollingThroughput(10))
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, s.Elapsed.Seconds())
}
