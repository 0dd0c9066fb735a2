package extractor

// attempt is one way of reading a field; ok is false when it found nothing.
type attempt func(doc *Document) (value string, ok bool)

// firstOf composes attempts so the first one that succeeds supplies the field.
func firstOf(attempts ...attempt) func(doc *Document) string {
	return func(doc *Document) string {
		for _, a := range attempts {
			if v, ok := a(doc); ok && v != "" {
				return v
			}
		}
		return ""
	}
}
