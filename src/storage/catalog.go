package storage

import (
	"regexp"
	"strings"
	"time"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/models"
)

// -----------------------------------------------------------------------------
// Schema Catalog / Identifier Validation
// -----------------------------------------------------------------------------

// BarTableSuffix is the naming convention identifying instrument tables.
const BarTableSuffix = "_bars"

// maxIdentifierLen bounds table identifiers well below any engine limit.
const maxIdentifierLen = 64

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// requiredBarColumns is the minimal column set an instrument table must carry.
var requiredBarColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// Well-formedness predicates shared by both backends. Every bar read filters
// on wellFormedPredicate so counts, pages and streams all range over the same
// sequence; malformedPredicate serves the excluded-row diagnostic count.
const (
	wellFormedPredicate = "open IS NOT NULL AND high IS NOT NULL AND low IS NOT NULL AND close IS NOT NULL"
	malformedPredicate  = "(open IS NULL OR high IS NULL OR low IS NULL OR close IS NULL)"
)

// sqlKeywords rejected as whole-identifier matches. Table names cannot be
// bound as parameters, so allow-list validation substitutes for
// parameterization; the keyword check is a defensive extra.
var sqlKeywords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "drop": {},
	"create": {}, "alter": {}, "table": {}, "from": {}, "where": {},
	"union": {}, "join": {}, "order": {}, "group": {}, "index": {},
	"pragma": {}, "attach": {}, "detach": {}, "vacuum": {}, "transaction": {},
}

// -----------------------------------------------------------------------------

// ValidateIdentifier accepts only identifiers safe to interpolate into SQL.
// It MUST be called before a table name reaches any query string.
func ValidateIdentifier(name string) error {
	if name == "" {
		return helpers.WrapError(helpers.ErrInvalidIdentifier, nil, "identifier is empty")
	}
	if len(name) > maxIdentifierLen {
		return helpers.WrapError(helpers.ErrInvalidIdentifier, nil,
			"identifier exceeds %d characters", maxIdentifierLen)
	}
	if !identifierPattern.MatchString(name) {
		return helpers.WrapError(helpers.ErrInvalidIdentifier, nil,
			"identifier '%s' contains disallowed characters", name)
	}
	if _, ok := sqlKeywords[strings.ToLower(name)]; ok {
		return helpers.WrapError(helpers.ErrInvalidIdentifier, nil,
			"identifier '%s' is a reserved word", name)
	}
	return nil
}

// -----------------------------------------------------------------------------

// InstrumentName derives the display instrument symbol from a table name.
func InstrumentName(table string) string {
	return strings.ToUpper(strings.TrimSuffix(table, BarTableSuffix))
}

// -----------------------------------------------------------------------------

// hasRequiredColumns checks a discovered column set against the bar schema.
func hasRequiredColumns(columns map[string]struct{}) bool {
	for _, c := range requiredBarColumns {
		if _, ok := columns[c]; !ok {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------

// buildInstrument assembles catalog metadata for one instrument table.
// minTs/maxTs are epoch seconds; count == 0 tables are skipped upstream.
func buildInstrument(table string, count, minTs, maxTs int64) models.MInstrument {
	instrument := InstrumentName(table)
	start := time.Unix(minTs, 0).UTC().Format("2006-01-02")
	end := time.Unix(maxTs, 0).UTC().Format("2006-01-02")

	return models.MInstrument{
		TableName:   table,
		Instrument:  instrument,
		RecordCount: count,
		DateRange:   models.MDateRange{Start: start, End: end},
		DisplayName: instrument + " (" + start + " to " + end + ")",
	}
}
