package dashboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleMetrics = `# HELP relayforge_session_open 1 while the control plane session is open
# TYPE relayforge_session_open gauge
relayforge_session_open 1
# HELP relayforge_dispatcher_queue_depth in-flight + queued invocations
# TYPE relayforge_dispatcher_queue_depth gauge
relayforge_dispatcher_queue_depth 3
# HELP relayforge_invocations_total invocation outcomes
# TYPE relayforge_invocations_total counter
relayforge_invocations_total{provider_type="prometheus",outcome="success"} 42
relayforge_invocations_total{provider_type="prometheus",outcome="http"} 2
`

func TestScrapeMetrics(t *testing.T) {
	gauges, invocations := scrapeMetrics(strings.NewReader(sampleMetrics))

	assert.Equal(t, float64(1), gauges["relayforge_session_open"])
	assert.Equal(t, float64(3), gauges["relayforge_dispatcher_queue_depth"])
	assert.Equal(t, float64(44), invocations)
}

func TestScrapeMetrics_IgnoresMalformedInput(t *testing.T) {
	gauges, invocations := scrapeMetrics(strings.NewReader("not a valid exposition document"))

	assert.Equal(t, float64(0), gauges["relayforge_session_open"])
	assert.Equal(t, float64(0), gauges["relayforge_dispatcher_queue_depth"])
	assert.Equal(t, float64(0), invocations)
}
