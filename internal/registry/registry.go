// Package registry resolves named index versions to their immutable artifact
// metadata. Artifacts are loaded once at startup; resolution never mutates
// state, so a registry value can be shared across requests without locking.
package registry

import (
	"fmt"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
)

// Registry maps index version ids to published artifacts.
type Registry struct {
	artifacts map[string]artifactEntry
}

type artifactEntry struct {
	artifact  domain.IndexArtifact
	indexName string
}

// New builds a registry from configured artifacts.
func New(cfgs []config.ArtifactConfig) (*Registry, error) {
	artifacts := make(map[string]artifactEntry, len(cfgs))
	for _, c := range cfgs {
		space := domain.Space(c.Space)
		if !domain.ValidSpace(space) {
			return nil, fmt.Errorf("artifact %s: unsupported space %q", c.IndexVersion, c.Space)
		}
		indexName := c.IndexName
		if indexName == "" {
			indexName = fmt.Sprintf("%sidx:%s", domain.KeyPrefix, c.IndexVersion)
		}
		artifacts[c.IndexVersion] = artifactEntry{
			artifact: domain.IndexArtifact{
				IndexVersion:     c.IndexVersion,
				EmbeddingVersion: c.EmbeddingVersion,
				Dim:              c.Dim,
				Space:            space,
			},
			indexName: indexName,
		}
	}
	return &Registry{artifacts: artifacts}, nil
}

// Resolve returns the artifact for an index version.
// An unknown version is a configuration fault, not a fallback trigger.
func (r *Registry) Resolve(indexVersion string) (domain.IndexArtifact, error) {
	entry, ok := r.artifacts[indexVersion]
	if !ok {
		return domain.IndexArtifact{}, fmt.Errorf("%w: %q", domain.ErrUnknownIndexVersion, indexVersion)
	}
	return entry.artifact, nil
}

// IndexName returns the backing FT index name for an index version.
func (r *Registry) IndexName(indexVersion string) (string, error) {
	entry, ok := r.artifacts[indexVersion]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownIndexVersion, indexVersion)
	}
	return entry.indexName, nil
}
