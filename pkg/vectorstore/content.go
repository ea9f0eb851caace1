package vectorstore

import "strings"

// ContentFields lists the payload keys that may carry document text, in the
// order they are tried.
var ContentFields = []string{"content", "text", "excerpt", "chunk", "body", "document", "title", "filename"}

// FilenameFields lists the payload keys that may carry a display filename.
var FilenameFields = []string{"filename", "file_name", "source", "title"}

// DocumentIDFields lists the payload keys that may carry the owning document id.
var DocumentIDFields = []string{"document_id", "doc_id", "documentId"}

// ExtractContent returns the first non-empty string found under ContentFields.
func ExtractContent(payload map[string]interface{}) string {
	return firstString(payload, ContentFields)
}

func ExtractFilename(payload map[string]interface{}) string {
	return firstString(payload, FilenameFields)
}

// ExtractDocumentID falls back to the point id when the payload names no
// document.
func ExtractDocumentID(p *Point) string {
	if id := firstString(p.Payload, DocumentIDFields); id != "" {
		return id
	}
	return p.ID
}

func firstString(payload map[string]interface{}, fields []string) string {
	if payload == nil {
		return ""
	}
	for _, f := range fields {
		if s, ok := payload[f].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// Excerpt truncates text to at most n runes, appending an ellipsis when cut.
func Excerpt(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
