package value

import "strings"

// Category is the normalization rule selected for a column, derived from the
// driver's database type name.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryChar
	CategoryBinary
	CategorySmallInt
	CategoryBigInt
	CategoryBool
	CategoryDecimal
	CategoryFloat
	CategoryDate
	CategoryTime
	CategoryTimestamp
	CategoryCLOB
	CategoryBLOB
	CategoryArray
	CategoryStruct
	// CategoryDynamic is used when the driver reports no type name (computed
	// expressions in SQLite); the Go type of the scanned value decides.
	CategoryDynamic
)

var categoryNames = [...]string{
	CategoryUnknown:   "unknown",
	CategoryChar:      "char",
	CategoryBinary:    "binary",
	CategorySmallInt:  "smallint",
	CategoryBigInt:    "bigint",
	CategoryBool:      "bool",
	CategoryDecimal:   "decimal",
	CategoryFloat:     "float",
	CategoryDate:      "date",
	CategoryTime:      "time",
	CategoryTimestamp: "timestamp",
	CategoryCLOB:      "clob",
	CategoryBLOB:      "blob",
	CategoryArray:     "array",
	CategoryStruct:    "struct",
	CategoryDynamic:   "dynamic",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// typeCategories maps upper-cased database type names, as reported by
// database/sql ColumnType.DatabaseTypeName for pgx, go-mssqldb,
// go-sql-driver/mysql and modernc sqlite, onto categories.
var typeCategories = map[string]Category{
	"CHAR": CategoryChar, "VARCHAR": CategoryChar, "NCHAR": CategoryChar,
	"NVARCHAR": CategoryChar, "VARCHAR2": CategoryChar, "NVARCHAR2": CategoryChar,
	"BPCHAR": CategoryChar, "NAME": CategoryChar, "CITEXT": CategoryChar,
	"CHARACTER": CategoryChar, "CHARACTER VARYING": CategoryChar, "STRING": CategoryChar,
	"JSON": CategoryChar, "JSONB": CategoryChar, "UUID": CategoryChar,
	"UNIQUEIDENTIFIER": CategoryChar, "XML": CategoryChar, "ENUM": CategoryChar,
	"SET": CategoryChar, "INTERVAL": CategoryChar, "INET": CategoryChar,
	"CIDR": CategoryChar, "MACADDR": CategoryChar, "TINYTEXT": CategoryChar,

	"TEXT": CategoryCLOB, "MEDIUMTEXT": CategoryCLOB, "LONGTEXT": CategoryCLOB,
	"NTEXT": CategoryCLOB, "CLOB": CategoryCLOB, "NCLOB": CategoryCLOB,

	"BINARY": CategoryBinary, "VARBINARY": CategoryBinary, "RAW": CategoryBinary,
	"TINYBLOB": CategoryBinary,

	"BLOB": CategoryBLOB, "MEDIUMBLOB": CategoryBLOB, "LONGBLOB": CategoryBLOB,
	"IMAGE": CategoryBLOB, "BYTEA": CategoryBLOB, "LONG RAW": CategoryBLOB,

	"TINYINT": CategorySmallInt, "SMALLINT": CategorySmallInt, "MEDIUMINT": CategorySmallInt,
	"INT": CategorySmallInt, "INTEGER": CategorySmallInt, "INT2": CategorySmallInt,
	"INT4": CategorySmallInt, "SMALLSERIAL": CategorySmallInt, "SERIAL": CategorySmallInt,
	"YEAR": CategorySmallInt,

	"BIGINT": CategoryBigInt, "INT8": CategoryBigInt, "BIGSERIAL": CategoryBigInt,
	"OID": CategoryBigInt, "LONG": CategoryBigInt,

	"BOOL": CategoryBool, "BOOLEAN": CategoryBool, "BIT": CategoryBool,

	"DECIMAL": CategoryDecimal, "NUMERIC": CategoryDecimal, "NUMBER": CategoryDecimal,
	"DEC": CategoryDecimal, "MONEY": CategoryDecimal, "SMALLMONEY": CategoryDecimal,

	"REAL": CategoryFloat, "FLOAT": CategoryFloat, "DOUBLE": CategoryFloat,
	"FLOAT4": CategoryFloat, "FLOAT8": CategoryFloat, "DOUBLE PRECISION": CategoryFloat,
	"BINARY_FLOAT": CategoryFloat, "BINARY_DOUBLE": CategoryFloat,

	"DATE": CategoryDate,

	"TIME": CategoryTime, "TIMETZ": CategoryTime, "TIME WITH TIME ZONE": CategoryTime,

	"TIMESTAMP": CategoryTimestamp, "TIMESTAMPTZ": CategoryTimestamp,
	"DATETIME": CategoryTimestamp, "DATETIME2": CategoryTimestamp,
	"SMALLDATETIME": CategoryTimestamp, "DATETIMEOFFSET": CategoryTimestamp,
	"TIMESTAMP WITH TIME ZONE": CategoryTimestamp,

	"ARRAY": CategoryArray,

	"STRUCT": CategoryStruct, "REF": CategoryStruct, "ROWID": CategoryStruct,
	"UROWID": CategoryStruct, "OBJECT": CategoryStruct, "ROW": CategoryStruct,
	"DISTINCT": CategoryStruct, "DATALINK": CategoryStruct,
}

// CategoryOf resolves a database type name. Length/precision suffixes
// ("DECIMAL(10,2)") and the MySQL "UNSIGNED " prefix are ignored. PostgreSQL
// array types ("_INT4") and "[]"-suffixed names map to CategoryArray. An empty
// name yields CategoryDynamic; an unrecognized one CategoryUnknown.
func CategoryOf(typeName string) Category {
	t := strings.ToUpper(strings.TrimSpace(typeName))
	if t == "" {
		return CategoryDynamic
	}
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimPrefix(t, "UNSIGNED ")
	t = strings.TrimSuffix(t, " UNSIGNED")
	if strings.HasPrefix(t, "_") || strings.HasSuffix(t, "[]") {
		return CategoryArray
	}
	if c, ok := typeCategories[t]; ok {
		return c
	}
	return CategoryUnknown
}

// ParseCategory resolves a configured register type, accepting either a
// category name ("decimal") or a database type name ("NUMERIC").
func ParseCategory(s string) Category {
	l := strings.ToLower(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == l && Category(i) != CategoryUnknown {
			return Category(i)
		}
	}
	return CategoryOf(s)
}
