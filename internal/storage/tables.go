// The table specs need to live in a place both the staging engine and the
// backend packages can import without circular deps.
package storage

// Policy selects the versioning discipline of a staging table. It is a fixed
// property of the table, never decided per row.
type Policy string

const (
	// PolicyOverwrite keeps a single row per natural key and mutates it in
	// place, advancing the date key on every change.
	PolicyOverwrite Policy = "overwrite"

	// PolicyAppendVersion keeps one row per (natural key, change date):
	// a change on a new date inserts a new row, a change on the same date
	// corrects the day's row in place.
	PolicyAppendVersion Policy = "append_version"
)

// ColumnSpec describes one column with a backend-generic type.
// Backends translate Type ("text" | "bigint" | "timestamp") into native DDL.
type ColumnSpec struct {
	Name string
	Type string
}

// TableSpec describes one versioned staging table.
//
// Identifier safety: specs are fixed, versioned values compiled into the
// binary. SQL identifiers are only ever taken from here, never from input.
type TableSpec struct {
	Name       string
	KeyColumn  ColumnSpec
	Tracked    []ColumnSpec
	DateColumn string
	Policy     Policy
}

// TrackedNames returns the tracked column names in declaration order.
func (t TableSpec) TrackedNames() []string {
	out := make([]string, 0, len(t.Tracked))
	for _, c := range t.Tracked {
		out = append(out, c.Name)
	}
	return out
}

// Authors keeps full attribute history: one row per day on which a tracked
// attribute actually changed.
var Authors = TableSpec{
	Name:      "authors",
	KeyColumn: ColumnSpec{Name: "author_id", Type: "text"},
	Tracked: []ColumnSpec{
		{Name: "author_name", Type: "text"},
		{Name: "avatar", Type: "text"},
	},
	DateColumn: "extract_date_sk",
	Policy:     PolicyAppendVersion,
}

// Videos follows the same append discipline as Authors.
var Videos = TableSpec{
	Name:      "videos",
	KeyColumn: ColumnSpec{Name: "video_id", Type: "text"},
	Tracked: []ColumnSpec{
		{Name: "author_id", Type: "text"},
		{Name: "text_content", Type: "text"},
		{Name: "duration", Type: "bigint"},
		{Name: "create_time", Type: "timestamp"},
		{Name: "web_video_url", Type: "text"},
	},
	DateColumn: "create_date_sk",
	Policy:     PolicyAppendVersion,
}

// Interactions holds volatile counters: a single row per video, overwritten
// in place. The date key records the last observation date.
var Interactions = TableSpec{
	Name:      "video_interactions",
	KeyColumn: ColumnSpec{Name: "video_id", Type: "text"},
	Tracked: []ColumnSpec{
		{Name: "digg_count", Type: "bigint"},
		{Name: "play_count", Type: "bigint"},
		{Name: "share_count", Type: "bigint"},
		{Name: "comment_count", Type: "bigint"},
		{Name: "collect_count", Type: "bigint"},
	},
	DateColumn: "interaction_date_sk",
	Policy:     PolicyOverwrite,
}

// StagingTables lists every versioned table in load order.
var StagingTables = []TableSpec{Authors, Videos, Interactions}

// CalendarColumns is the fixed 18-column layout of the date dimension,
// matching the calendar reference file consumed by the bulk loader.
var CalendarColumns = []string{
	"date_sk",
	"full_date",
	"day_since_2005",
	"month_since_2005",
	"day_of_week",
	"calendar_month",
	"calendar_year",
	"calendar_year_month",
	"day_of_month",
	"day_of_year",
	"week_of_year_sunday",
	"year_week_sunday",
	"week_sunday_start",
	"week_of_year_monday",
	"year_week_monday",
	"week_monday_start",
	"holiday",
	"day_type",
}

// Fixed table names for the non-versioned structures.
const (
	RawTableName     = "raw_json"
	DateDimTableName = "date_dim"
	LoadLogTableName = "load_log"
)
