package consultant

import (
	"reflect"
	"testing"

	"github.com/lemmaiot/sme-consultant/internal/domain"
	"google.golang.org/genai"
)

func TestGroundingSourcesFiltersIncompleteEntries(t *testing.T) {
	md := &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
			{Web: &genai.GroundingChunkWeb{URI: "https://no-title.example"}},
			{Web: &genai.GroundingChunkWeb{Title: "No URI"}},
			{Web: nil},
			nil,
			{Web: &genai.GroundingChunkWeb{URI: "https://b.example", Title: "B"}},
		},
	}

	got := groundingSources(md)
	want := []domain.Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example", Title: "B"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("groundingSources = %v, want %v", got, want)
	}
}

func TestGroundingSourcesNilMetadata(t *testing.T) {
	if got := groundingSources(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRankSourcesPartnerFirstOnMention(t *testing.T) {
	sources := []domain.Source{
		{URI: "https://other.com", Title: "Y"},
		{URI: "https://lemmaiot.com.ng/x", Title: "X"},
		{URI: "https://another.com", Title: "Z"},
		{URI: "https://lemmaiot.com.ng/y", Title: "W"},
	}

	got := rankSources(sources, "You could talk to LemmaIoT about this.")
	want := []domain.Source{
		{URI: "https://lemmaiot.com.ng/x", Title: "X"},
		{URI: "https://lemmaiot.com.ng/y", Title: "W"},
		{URI: "https://other.com", Title: "Y"},
		{URI: "https://another.com", Title: "Z"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rankSources = %v, want %v", got, want)
	}
}

func TestRankSourcesMentionIsCaseInsensitive(t *testing.T) {
	sources := []domain.Source{
		{URI: "https://other.com", Title: "Y"},
		{URI: "https://lemmaiot.com.ng/x", Title: "X"},
	}

	got := rankSources(sources, "see LEMMAIOT.COM.NG for details")
	if got[0].URI != "https://lemmaiot.com.ng/x" {
		t.Fatalf("expected partner source first, got %v", got)
	}
}

func TestRankSourcesKeepsOrderWithoutMention(t *testing.T) {
	sources := []domain.Source{
		{URI: "https://other.com", Title: "Y"},
		{URI: "https://lemmaiot.com.ng/x", Title: "X"},
	}

	got := rankSources(sources, "plain answer, no brand mentioned")
	if !reflect.DeepEqual(got, sources) {
		t.Fatalf("expected original order, got %v", got)
	}
}
