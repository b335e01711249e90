package clients

import (
	"encoding/base64"
	"strings"
)

// Resource is a fetched image.
type Resource struct {
	URL         string
	ContentType string
	Data        []byte
}

func (r *Resource) DataURI() string {
	var b strings.Builder
	b.WriteString("data:")
	b.WriteString(r.ContentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(r.Data))
	return b.String()
}
