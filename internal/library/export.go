// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"go.yaml.in/yaml/v3"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

const (
	queueYAML   = "curation_queue.yaml"
	queueJSON   = "curation_queue.json"
	exportLimit = 100000
)

// Queue is the exported curation queue: ready records by priority plus
// the stored rejects.
type Queue struct {
	Records []QueryResult `json:"records" yaml:"records"`
	Rejects []RejectEntry `json:"rejects" yaml:"rejects"`
}

// ExportYAML writes the curation queue to <dir>/curation_queue.yaml and
// returns the path. It supports the same filters as Retrieve.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	q, err := s.queue(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(q)
	if err != nil {
		return "", errors.Wrap(err, "marshaling YAML")
	}
	return s.write(queueYAML, data)
}

// ExportJSON writes the curation queue to <dir>/curation_queue.json.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	q, err := s.queue(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshaling JSON")
	}
	return s.write(queueJSON, append(data, '\n'))
}

func (s *Store) write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return path, nil
}

// queue collects the export. Full-text matches are re-sorted by priority
// so the queue order does not depend on the query.
func (s *Store) queue(ctx context.Context, opts QueryOptions) (Queue, error) {
	opts.MaxResults = exportLimit
	records, err := s.Retrieve(ctx, opts)
	if err != nil {
		return Queue{}, errors.Wrap(err, "querying for export")
	}
	sortByPriority(records)
	if records == nil {
		records = []QueryResult{}
	}

	rejects := []RejectEntry{}
	if opts.Query == "" && opts.Priority == "" && opts.Focus == "" && opts.JobStatus == "" {
		rejects, err = s.Rejects(ctx, opts.PostID, exportLimit)
		if err != nil {
			return Queue{}, errors.Wrap(err, "querying rejects for export")
		}
		if rejects == nil {
			rejects = []RejectEntry{}
		}
	}
	return Queue{Records: records, Rejects: rejects}, nil
}

func priorityRank(p string) int {
	switch p {
	case types.PriorityHigh:
		return 0
	case types.PriorityMedium:
		return 1
	default:
		return 2
	}
}

func sortByPriority(records []QueryResult) {
	sort.SliceStable(records, func(i, j int) bool {
		return priorityRank(records[i].Priority) < priorityRank(records[j].Priority)
	})
}
