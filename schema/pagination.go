package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PageToken is the decoded shape of the opaque pagination cursor the HTTP
// boundary hands back as x-next-token and accepts back as next_token. Its
// contents are substrate-specific (the metadata store's LastEvaluatedKey
// equivalent); callers never inspect it directly.
type PageToken struct {
	LastKey map[string]string `json:"lastKey"`
}

// Encode renders a PageToken as the opaque base64-JSON string handed to
// clients. A token with no LastKey encodes as the empty string, signaling
// end-of-stream per the spec's "empty/zero-delta token" rule.
func (t PageToken) Encode() string {
	if len(t.LastKey) == 0 {
		return ""
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// DecodePageToken parses a client-supplied next_token. An empty string
// decodes to a zero-value PageToken (start from the beginning).
func DecodePageToken(s string) (PageToken, error) {
	if s == "" {
		return PageToken{}, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return PageToken{}, fmt.Errorf("schema: invalid page token: %w", err)
	}
	var t PageToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return PageToken{}, fmt.Errorf("schema: invalid page token: %w", err)
	}
	return t, nil
}
