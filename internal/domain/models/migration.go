package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Migration row states. FAILED is reachable from any non-terminal state;
// undo moves MIGRATED back to XML.
const (
	MigrationStatusCreated  = "CREATED"
	MigrationStatusXML      = "XML"
	MigrationStatusMigrated = "MIGRATED"
	MigrationStatusFailed   = "FAILED"
)

// Migration XML sources, recorded on the row by the orchestrator.
const (
	SourceNewWebsite  = "new-website"
	SourceFilesystem  = "filesystem"
	SourceArticleMeta = "article-meta"
)

// Migration tracks one legacy document through the back-migration
// pipeline. Rows are identified by v2.
type Migration struct {
	V2       string
	AopPid   string
	IsAop    bool
	FilePath string
	ISSN     string
	Year     string
	Order    string
	V91      string
	V93      string

	// V3 is filled once the id request succeeds.
	V3 string
	// XML holds the pulled document content.
	XML string
	// Source names which pull source yielded the XML.
	Source string

	Status    string
	StatusMsg string

	Created time.Time
	Updated time.Time
}

// MigrationDescriptor is one row of the external JSONL seed file.
type MigrationDescriptor struct {
	V2       string `json:"v2"`
	AopPid   string `json:"aop_pid"`
	IsAop    bool   `json:"is_aop"`
	FilePath string `json:"file_path"`
	ISSN     string `json:"issn"`
	Year     string `json:"year"`
	Order    string `json:"order"`
	V91      string `json:"v91"`
	V93      string `json:"v93"`
}

// Validate checks the fields the orchestrator depends on.
func (d MigrationDescriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.V2, validation.Required, validation.Length(1, 23)),
		validation.Field(&d.ISSN, validation.Required),
	)
}
