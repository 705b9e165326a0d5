package workers

import (
	"testing"

	"github.com/devkyu/platewatch/internal/job"
	"github.com/devkyu/platewatch/internal/pipeline"
	"github.com/devkyu/platewatch/internal/queue"
)

func stageNames(stages []pipeline.Stage, onlyEnabled bool) []string {
	var out []string
	for _, s := range stages {
		if onlyEnabled && !s.Enabled {
			continue
		}
		out = append(out, s.Name)
	}
	return out
}

func TestStages_PerWorkType(t *testing.T) {
	r := NewJobRunner(nil, nil, nil, nil)

	cases := []struct {
		typ     job.Type
		payload map[string]any
		want    []string
	}{
		{job.TypeRestaurantCrawl, nil, []string{"menu-crawl", "review-crawl", "summarize"}},
		{job.TypeReviewCrawl, nil, []string{"review-crawl"}},
		{job.TypeReviewCrawl, map[string]any{"summarize": true}, []string{"review-crawl", "summarize"}},
		{job.TypeReviewSummary, nil, []string{"summarize"}},
		{job.TypeRestaurantCrawl, map[string]any{"crawl_menu": false}, []string{"review-crawl", "summarize"}},
		{job.Type("bogus"), nil, nil},
	}

	for _, c := range cases {
		stages := r.stages("j1", queue.Item{Type: c.typ, SubjectID: 1, Payload: c.payload})
		got := stageNames(stages, true)
		if len(got) != len(c.want) {
			t.Fatalf("%s %v: got %v, want %v", c.typ, c.payload, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%s %v: got %v, want %v", c.typ, c.payload, got, c.want)
			}
		}
	}
}

func TestEnabled_PayloadOverridesDefault(t *testing.T) {
	if !enabled(nil, "crawl_menu", true) {
		t.Fatalf("missing key must fall back to default")
	}
	if enabled(map[string]any{"crawl_menu": false}, "crawl_menu", true) {
		t.Fatalf("explicit false must win over default")
	}
	if !enabled(map[string]any{"crawl_menu": "yes"}, "crawl_menu", true) {
		t.Fatalf("non-bool value must fall back to default")
	}
}
