package internaldefs

import (
	"strconv"
	"strings"
	"testing"

	authcore "github.com/MrEthical07/authcore"
)

func TestEveryCounterIsDefinedOnce(t *testing.T) {
	seen := make(map[authcore.MetricID]bool)
	names := make(map[string]bool)
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("metric %d defined twice", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("name %s used twice", def.Name)
		}
		if !strings.HasPrefix(def.Name, "authcore_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter name %s must be authcore_*_total", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	for id := authcore.MetricLoginSuccess; id < authcore.MetricAuthenticateLatency; id++ {
		if !seen[id] {
			t.Fatalf("metric %d has no export definition", id)
		}
	}
	if seen[authcore.MetricAuthenticateLatency] {
		t.Fatal("latency histogram must not be exported as a counter")
	}
}

func TestBucketHelpers(t *testing.T) {
	if len(HistogramBoundLabels) != len(HistogramBounds)+1 {
		t.Fatalf("labels=%d bounds=%d", len(HistogramBoundLabels), len(HistogramBounds))
	}
	for i, le := range HistogramBounds {
		if got := strconv.FormatFloat(le, 'g', -1, 64); got != HistogramBoundLabels[i] {
			t.Fatalf("label %d = %s, want %s", i, HistogramBoundLabels[i], got)
		}
	}
	norm := NormalizeBuckets([]uint64{1, 2, 3})
	if norm != [8]uint64{1, 2, 3, 0, 0, 0, 0, 0} {
		t.Fatalf("NormalizeBuckets = %v", norm)
	}
	cum := CumulativeBuckets([8]uint64{1, 1, 1, 1, 1, 1, 1, 1})
	if cum[0] != 1 || cum[7] != 8 {
		t.Fatalf("CumulativeBuckets = %v", cum)
	}
}
