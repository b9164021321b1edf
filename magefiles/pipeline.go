//go:build mage

package main

import "github.com/magefile/mage/mg"

// Pipeline groups the stage targets.
type Pipeline mg.Namespace

// QA canonicalizes and validates data/processed/knowledge_extract.jsonl.
func (Pipeline) QA() error { return run("qa") }

// Schema writes the canonical contract JSON Schema.
func (Pipeline) Schema() error { return run("schema") }

// Gate evaluates the export gate, recomputing QA.
func (Pipeline) Gate() error { return run("gate", "--refresh-qa") }

// Export writes the library ready and reject streams.
func (Pipeline) Export() error { return run("export") }

// All runs QA, schema, export and library ingest in order.
func (Pipeline) All() {
	mg.SerialDeps(Pipeline.QA, Pipeline.Schema, Pipeline.Export, Library.Store)
}

// Library groups the curation library targets.
type Library mg.Namespace

// Store ingests the export streams into the library.
func (Library) Store() error { return run("library", "store") }

// Export writes the curation queue as YAML.
func (Library) Export() error { return run("library", "export") }
