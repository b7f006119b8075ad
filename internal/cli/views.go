package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/hoarder/internal/record"
	"github.com/roach88/hoarder/internal/store"
)

// ErrDuplicateCode is returned by add when a record with the code exists.
var ErrDuplicateCode = errors.New("duplicate code")

// DuplicateMessage is shown when a scanned code is already catalogued.
const DuplicateMessage = "You have that one!"

// RecordView is the output form of one record.
type RecordView struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	TitleLocalized string `json:"title_localized"`
	TitleOriginal  string `json:"title_original"`
	DisplayTitle   string `json:"display_title"`
}

func newRecordView(rec record.Record) RecordView {
	return RecordView{
		ID:             rec.ID,
		Code:           rec.Code,
		TitleLocalized: rec.TitleLocalized,
		TitleOriginal:  rec.TitleOriginal,
		DisplayTitle:   rec.DisplayTitle(),
	}
}

func (v RecordView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:        %s\n", v.ID)
	fmt.Fprintf(&b, "Code:      %s\n", v.Code)
	fmt.Fprintf(&b, "Localized: %s\n", v.TitleLocalized)
	fmt.Fprintf(&b, "Original:  %s", v.TitleOriginal)
	return b.String()
}

// line renders v as one list row.
func (v RecordView) line() string {
	title := v.DisplayTitle
	if title == "" {
		title = "(untitled)"
	}
	return v.ID + "  " + title
}

// RecordList is the output of list, search and the initial watch batch.
type RecordList struct {
	Query   string       `json:"query,omitempty"`
	Count   int          `json:"count"`
	Records []RecordView `json:"records"`
}

func newRecordList(query string, recs []record.Record) RecordList {
	views := make([]RecordView, len(recs))
	for i, rec := range recs {
		views[i] = newRecordView(rec)
	}
	return RecordList{Query: query, Count: len(views), Records: views}
}

func (l RecordList) String() string {
	if len(l.Records) == 0 {
		return "No records."
	}
	lines := make([]string, len(l.Records))
	for i, v := range l.Records {
		lines[i] = v.line()
	}
	return strings.Join(lines, "\n")
}

// AddResult is the output of add.
type AddResult struct {
	ID    string `json:"id"`
	Field string `json:"field"`
	Value string `json:"value"`
}

func (r AddResult) String() string {
	return fmt.Sprintf("Added %s (%s: %s)", r.ID, r.Field, r.Value)
}

// ExistsResult is the output of exists.
type ExistsResult struct {
	Code   string `json:"code"`
	Exists bool   `json:"exists"`
}

func (r ExistsResult) String() string {
	if r.Exists {
		return fmt.Sprintf("%s: found", r.Code)
	}
	return fmt.Sprintf("%s: not found", r.Code)
}

// DeleteResult is the output of delete.
type DeleteResult struct {
	ID string `json:"id"`
}

func (r DeleteResult) String() string {
	return "Deleted " + r.ID
}

// InfoResult is the output of info.
type InfoResult struct {
	Database      string `json:"database"`
	SchemaVersion int    `json:"schema_version"`
	Records       int    `json:"records"`
}

func (r InfoResult) String() string {
	return fmt.Sprintf("Database:       %s\nSchema version: %d\nRecords:        %d",
		r.Database, r.SchemaVersion, r.Records)
}

// BackupResult is the output of backup.
type BackupResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (r BackupResult) String() string {
	return fmt.Sprintf("Backed up %s to %s", r.Source, r.Destination)
}

// storeFailure reports a store error through the formatter and maps it to
// an exit code.
func storeFailure(f *OutputFormatter, message string, err error) error {
	code := ErrCodeStorage
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodeNotFound
	case store.IsMigrationError(err):
		code = ErrCodeMigration
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}
