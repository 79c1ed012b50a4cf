package canon

// DecimalString is the Go rendition of a Python Decimal: the exact digit
// string an editor authored, carried end-to-end without ever becoming a
// float64. Payload structs use this type for fields such as an evidence
// confidence score, so their JSON shape already matches the canonical
// string form and Canon() can hand it straight to Decimal.
type DecimalString string

// Canon converts d to its canonical Value, validating the digit pattern.
func (d DecimalString) Canon() (Value, error) { return Decimal(string(d)) }
