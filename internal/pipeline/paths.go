// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import "path/filepath"

const (
	rawDir       = "raw"
	processedDir = "processed"
	libraryDir   = "library"
)

// Paths names every artifact under a data directory.
type Paths struct {
	DataDir string
	Raw     string

	Input          string
	Canonical      string
	QualityRecords string
	QAReport       string
	Schema         string

	GateReport string
	ExportPass string
	ExportFail string

	LibraryReady        string
	LibraryRejects      string
	LibraryExportReport string

	Library   string
	LibraryDB string
}

// NewPaths lays out the artifact paths under dataDir.
func NewPaths(dataDir string) Paths {
	processed := filepath.Join(dataDir, processedDir)
	p := func(name string) string { return filepath.Join(processed, name) }
	lib := filepath.Join(dataDir, libraryDir)
	return Paths{
		DataDir: dataDir,
		Raw:     filepath.Join(dataDir, rawDir),

		Input:          p("knowledge_extract.jsonl"),
		Canonical:      p("knowledge_extract_canonical.jsonl"),
		QualityRecords: p("knowledge_quality_records.jsonl"),
		QAReport:       p("knowledge_qa_report.json"),
		Schema:         p("knowledge_canonical.schema.json"),

		GateReport: p("knowledge_export_gate_report.json"),
		ExportPass: p("knowledge_export_pass.jsonl"),
		ExportFail: p("knowledge_export_fail.jsonl"),

		LibraryReady:        p("knowledge_library_ready.jsonl"),
		LibraryRejects:      p("knowledge_library_rejects.jsonl"),
		LibraryExportReport: p("knowledge_library_export_report.json"),

		Library:   lib,
		LibraryDB: filepath.Join(lib, "library.db"),
	}
}

// WithLibraryDir moves the library store to dir. An empty dir keeps the
// default under the data directory.
func (p Paths) WithLibraryDir(dir string) Paths {
	if dir == "" {
		return p
	}
	p.Library = dir
	p.LibraryDB = filepath.Join(dir, "library.db")
	return p
}
