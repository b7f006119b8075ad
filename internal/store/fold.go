package store

import (
	"database/sql"
	"unicode"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// driverName is the database/sql driver registered by this package.
// It is the stock go-sqlite3 driver plus the hoard_fold SQL function.
const driverName = "sqlite3_hoarder"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("hoard_fold", foldText, true)
		},
	})
}

// foldText maps s to its search key: diacritics removed and case folded.
// "Amélie" and "AMELIE" fold to the same key.
//
// Both stored values (via hoard_fold in SQL) and search input go through
// this function, so containment on folded keys is case-insensitive and
// diacritic-insensitive.
func foldText(s string) string {
	// Transformers carry state; build a fresh chain per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}
