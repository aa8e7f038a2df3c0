package consultant

import (
	"regexp"
	"strings"

	"github.com/lemmaiot/sme-consultant/internal/domain"
	"google.golang.org/genai"
)

// PartnerDomain is the preferred-partner domain whose citations are
// surfaced first whenever the answer mentions the brand.
const PartnerDomain = "lemmaiot.com.ng"

var partnerMentionPattern = regexp.MustCompile(`(?i)lemmaiot\.com\.ng|LemmaIoT`)

// groundingSources extracts web citations from the final chunk's
// grounding metadata. Entries without both a URI and a title are
// dropped.
func groundingSources(md *genai.GroundingMetadata) []domain.Source {
	if md == nil {
		return nil
	}
	var sources []domain.Source
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		if chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		sources = append(sources, domain.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return sources
}

// rankSources moves partner-domain citations to the front when the
// accumulated answer mentions the partner brand or domain, preserving
// relative order within each group.
func rankSources(sources []domain.Source, fullText string) []domain.Source {
	if len(sources) == 0 || !partnerMentionPattern.MatchString(fullText) {
		return sources
	}

	partner := make([]domain.Source, 0, len(sources))
	other := make([]domain.Source, 0, len(sources))
	for _, src := range sources {
		if strings.Contains(src.URI, PartnerDomain) {
			partner = append(partner, src)
		} else {
			other = append(other, src)
		}
	}
	return append(partner, other...)
}
