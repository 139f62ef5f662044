/**
 * @description
 * Static fallback rates used when both live providers are unreachable. Keys
 * are ordered pair strings ("USD-AFN"). The table is the third resolution
 * tier; it is deliberately small and reviewed by operations rather than
 * refreshed automatically.
 */

package rates

// StaticTable maps ordered currency pairs to fallback rates.
type StaticTable map[string]float64

// DefaultStaticTable carries the corridor pairs the sarafs on the platform
// trade most. Values are periodically updated by hand.
func DefaultStaticTable() StaticTable {
	return StaticTable{
		"USD-AFN": 70.85,
		"USD-PKR": 278.50,
		"USD-IRR": 42000.0,
		"USD-EUR": 0.92,
		"USD-GBP": 0.79,
		"USD-AED": 3.6725,
		"USD-TRY": 32.50,
		"USD-INR": 83.20,
		"EUR-AFN": 77.10,
		"AED-AFN": 19.30,
	}
}

// Lookup resolves a pair against the table. An explicit entry always wins;
// otherwise the inverse pair is consulted and inverted. The second return
// reports whether any entry matched.
func (t StaticTable) Lookup(from, to string) (float64, bool) {
	if rate, ok := t[from+"-"+to]; ok {
		return rate, true
	}
	if inverse, ok := t[to+"-"+from]; ok && inverse != 0 {
		return 1 / inverse, true
	}
	return 0, false
}
