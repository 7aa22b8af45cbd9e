package packaging

import "strings"

// toSnakeCase converts a camelCase or PascalCase identifier (as used in
// claim/manifest metadata names) to snake_case (as used in generated HCL
// identifiers), e.g. "bucketName" -> "bucket_name".
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// toCamelCase converts a snake_case identifier back to camelCase, the
// inverse of toSnakeCase, used to look a tf variable's claim-supplied
// override up by its claim-side (camelCase) name.
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
