package dbus

import "github.com/creachadair/mds/mapset"

var (
	// basicCodes is the set of type codes of DBus basic types, which
	// are the types that can be dict keys.
	basicCodes = mapset.New[byte](
		'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'h',
	)

	// fixedSize maps the type codes of DBus types with a constant
	// wire size to that size. Arrays of these types are copied as a
	// single block.
	//
	// Booleans are excluded: their 4 wire bytes must be checked
	// individually.
	fixedSize = map[byte]int{
		'y': 1,
		'n': 2,
		'q': 2,
		'i': 4,
		'u': 4,
		'h': 4,
		'x': 8,
		't': 8,
		'd': 8,
	}

	// align8Codes is the set of type codes that begin on an 8-byte
	// boundary.
	align8Codes = mapset.New[byte]('x', 't', 'd', '(', '{')
	// align4Codes is the set of type codes that begin on a 4-byte
	// boundary.
	align4Codes = mapset.New[byte]('b', 'i', 'u', 'h', 's', 'o', 'a')
	// align2Codes is the set of type codes that begin on a 2-byte
	// boundary.
	align2Codes = mapset.New[byte]('n', 'q')
)

// alignOf returns the wire alignment of values whose type begins with
// type code c. Signatures, variants and bytes are not aligned.
func alignOf(c byte) int {
	switch {
	case align8Codes.Has(c):
		return 8
	case align4Codes.Has(c):
		return 4
	case align2Codes.Has(c):
		return 2
	default:
		return 1
	}
}
