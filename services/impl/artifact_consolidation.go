package impl

import (
	"encoding/json"
	"sort"

	"github.com/bluelabel/contentmind/models"
)

// DigestSummary is the result of folding many ContentArtifacts into one
// digest: counts, popular tags, and the rendered body.
type DigestSummary struct {
	ArtifactCount int            `json:"artifact_count"`
	TypeCounts    map[string]int `json:"type_counts"`
	TopTags       []TagCount     `json:"top_tags"`
	Body          string         `json:"body"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// AssembleDigest folds a set of ContentArtifacts accumulated since a
// job's last run into one DigestSummary.
func AssembleDigest(artifacts []models.ContentArtifact, bodyFormatter func([]models.ContentArtifact) string) DigestSummary {
	return DigestSummary{
		ArtifactCount: len(artifacts),
		TypeCounts:    countContentTypes(artifacts),
		TopTags:       topTags(artifacts, 10),
		Body:          bodyFormatter(artifacts),
	}
}

// countContentTypes tallies how many artifacts fall under each content
// type.
func countContentTypes(artifacts []models.ContentArtifact) map[string]int {
	counts := make(map[string]int)
	for _, a := range artifacts {
		counts[string(a.ContentType)]++
	}
	return counts
}

// topTags ranks the most frequent tags across artifacts, returning at
// most `limit` entries.
func topTags(artifacts []models.ContentArtifact, limit int) []TagCount {
	counts := make(map[string]int)
	for _, a := range artifacts {
		var tags []string
		if err := json.Unmarshal(a.Tags, &tags); err != nil {
			continue
		}
		for _, tag := range tags {
			counts[tag]++
		}
	}

	ranked := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		ranked = append(ranked, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Tag < ranked[j].Tag
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
