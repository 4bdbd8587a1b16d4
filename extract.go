package devpoll

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"
)

// ExtractField returns the text of the first element named name in an XML
// response body.
//
// Only the element's own character data counts, not text inside its
// children; surrounding whitespace is trimmed. Namespaces are ignored, so
// "CDS" matches both <CDS> and <dev:CDS>.
//
// Returns ("", false) when body is nil or empty, the element is absent or
// has no text, or the document is malformed before the element closes.
// ExtractField never panics.
//
// Example:
//
//	// body: <status><CDS>3</CDS></status>
//	v, ok := devpoll.ExtractField(body, "CDS") // "3", true
func ExtractField(body *Body, name string) (value string, ok bool) {
	if body == nil || len(body.raw) == 0 || name == "" {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			value, ok = "", false
		}
	}()

	dec := newDecoder(body.raw)
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		start, isStart := tok.(xml.StartElement)
		if !isStart || start.Name.Local != name {
			continue
		}
		return directText(dec)
	}
}

// ExtractFields looks up each name with [ExtractField] and returns the ones
// present. The result is never nil.
func ExtractFields(body *Body, names ...string) map[string]string {
	fields := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := ExtractField(body, name); ok {
			fields[name] = v
		}
	}
	return fields
}

// FirstField returns the value of the first name in names that is present
// in body. Useful when firmware revisions rename a field.
func FirstField(body *Body, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := ExtractField(body, name); ok {
			return v, true
		}
	}
	return "", false
}

func newDecoder(raw []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	// device firmware often declares ISO-8859-1 and omits closing tags
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	return dec
}

// directText collects the character data directly under the element whose
// start tag was just read, up to its end tag.
func directText(dec *xml.Decoder) (string, bool) {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				text := strings.TrimSpace(sb.String())
				return text, text != ""
			}
			depth--
		case xml.CharData:
			if depth == 0 {
				sb.Write(t)
			}
		}
	}
}
