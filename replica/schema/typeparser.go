package schema

import (
	"strconv"
	"strings"

	"github.com/ParshinPavel/libslave/replica/field"
)

// parseColumnType turns the `Type` column of SHOW FULL COLUMNS (e.g.
// "varchar(255)", "decimal(10,2) unsigned", "enum('a','b')",
// "datetime(3)", "bit(10)") into a field.Type plus whatever of field.Meta
// that single string can supply. TABLE_MAP metadata bytes fill in the
// rest (declared length for strings; fractional digits for temporal)
// once an actual event arrives, but signedness and the ENUM/SET value
// list come only from this DDL string.
func parseColumnType(raw string) (field.Type, field.Meta, int, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	name, args := splitTypeArgs(lower)
	unsigned := strings.Contains(lower, "unsigned")

	meta := field.Meta{Unsigned: unsigned}
	bitLen := 0

	switch {
	case name == "tinyint":
		return field.TypeTiny, meta, bitLen, nil
	case name == "smallint" || name == "year":
		if name == "year" {
			return field.TypeYear, meta, bitLen, nil
		}
		return field.TypeShort, meta, bitLen, nil
	case name == "mediumint":
		return field.TypeInt24, meta, bitLen, nil
	case name == "int" || name == "integer":
		return field.TypeLong, meta, bitLen, nil
	case name == "bigint":
		return field.TypeLongLong, meta, bitLen, nil
	case name == "float":
		return field.TypeFloat, meta, bitLen, nil
	case name == "double" || name == "real":
		return field.TypeDouble, meta, bitLen, nil
	case name == "decimal" || name == "numeric":
		return field.TypeNewDecimal, meta, bitLen, nil

	case name == "date":
		return field.TypeDate, meta, bitLen, nil
	case name == "time":
		meta.Decimals = decimalsOf(args)
		return field.TypeTime2, meta, bitLen, nil
	case name == "datetime":
		meta.Decimals = decimalsOf(args)
		return field.TypeDateTime2, meta, bitLen, nil
	case name == "timestamp":
		meta.Decimals = decimalsOf(args)
		return field.TypeTimestamp2, meta, bitLen, nil

	case name == "varchar":
		meta.DeclaredLen = lenOf(args)
		return field.TypeVarchar, meta, bitLen, nil
	case name == "char":
		meta.DeclaredLen = lenOf(args)
		return field.TypeString, meta, bitLen, nil

	case name == "tinytext" || name == "tinyblob":
		return field.TypeTinyBlob, meta, bitLen, nil
	case name == "text" || name == "blob":
		return field.TypeBlob, meta, bitLen, nil
	case name == "mediumtext" || name == "mediumblob":
		return field.TypeMediumBlob, meta, bitLen, nil
	case name == "longtext" || name == "longblob":
		return field.TypeLongBlob, meta, bitLen, nil
	case name == "json":
		return field.TypeJSON, meta, bitLen, nil

	case name == "enum":
		meta.EnumValues = quotedList(args)
		return field.TypeEnum, meta, bitLen, nil
	case name == "set":
		meta.EnumValues = quotedList(args)
		return field.TypeSet, meta, bitLen, nil

	case name == "bit":
		n, _ := strconv.Atoi(args)
		if n <= 0 {
			n = 1
		}
		bitLen = n
		return field.TypeBit, meta, bitLen, nil

	case name == "binary":
		meta.DeclaredLen = lenOf(args)
		return field.TypeString, meta, bitLen, nil
	case name == "varbinary":
		meta.DeclaredLen = lenOf(args)
		return field.TypeVarchar, meta, bitLen, nil

	default:
		// Geometry and other rarely-replicated types decode as opaque
		// blobs; the raw bytes survive even if their semantic meaning
		// doesn't.
		return field.TypeBlob, meta, bitLen, nil
	}
}

// splitTypeArgs splits "varchar(255)" into ("varchar", "255") and
// "int" into ("int", ""). Anything after the closing paren (e.g.
// " unsigned", " zerofill") is dropped; callers check for "unsigned"
// against the whole original string instead.
func splitTypeArgs(lower string) (name, args string) {
	open := strings.IndexByte(lower, '(')
	if open < 0 {
		return firstWord(lower), ""
	}
	close := strings.IndexByte(lower[open:], ')')
	if close < 0 {
		return firstWord(lower), ""
	}
	return lower[:open], lower[open+1 : open+close]
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func decimalsOf(args string) uint8 {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 0 {
		return 0
	}
	if n > 6 {
		n = 6
	}
	return uint8(n)
}

func lenOf(args string) uint32 {
	args = strings.Split(args, ",")[0]
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 0 {
		return 0
	}
	return uint32(n)
}

// quotedList parses enum/set arguments of the form 'a','b','c' into the
// listed string literals, unescaping doubled quotes the way MySQL emits
// them in SHOW FULL COLUMNS output. An unquoted item between commas is
// kept as written, with surrounding spaces trimmed.
func quotedList(args string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	bare := false
	for i := 0; i < len(args); i++ {
		c := args[i]
		switch {
		case !inQuote && c == '\'':
			inQuote = true
		case inQuote && c == '\'':
			if i+1 < len(args) && args[i+1] == '\'' {
				cur.WriteByte('\'')
				i++
				continue
			}
			inQuote = false
			out = append(out, cur.String())
			cur.Reset()
		case inQuote:
			cur.WriteByte(c)
		case c == ',':
			if bare {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
				bare = false
			}
		case c != ' ' || bare:
			cur.WriteByte(c)
			bare = true
		}
	}
	if bare {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}
