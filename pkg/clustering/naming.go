package clustering

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/pkg/llm"
)

const (
	maxNameRunes      = 50
	maxNameWords      = 6
	namingPromptChars = 2000
	topKeywords       = 3
)

const namingSystemPrompt = `You name groups of related documents.
Reply with a single name of 2 to 4 words in Title Case.
Do not use generic words such as documents, files, cluster, group, collection, misc or various.
Reply with the name only, without quotes or punctuation.`

var genericNameTerms = map[string]bool{
	"documents": true, "document": true, "files": true, "file": true,
	"cluster": true, "clusters": true, "group": true, "groups": true,
	"collection": true, "collections": true, "misc": true, "miscellaneous": true,
	"various": true, "stuff": true, "content": true, "data": true, "untitled": true,
}

var keywordStopWords = map[string]bool{
	"the": true, "and": true, "or": true, "but": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "of": true, "with": true, "by": true, "from": true, "as": true,
	"is": true, "was": true, "are": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "you": true, "he": true,
	"she": true, "it": true, "its": true, "we": true, "they": true, "them": true, "their": true,
	"what": true, "which": true, "who": true, "when": true, "where": true, "why": true,
	"how": true, "all": true, "any": true, "each": true, "also": true, "into": true,
	"than": true, "then": true, "there": true, "here": true, "not": true, "only": true,
	"our": true, "your": true, "his": true, "her": true, "about": true, "more": true,
	"most": true, "some": true, "such": true, "other": true, "over": true, "very": true,
	"just": true, "one": true, "two": true, "new": true, "use": true, "used": true,
	"using": true, "page": true, "pdf": true, "txt": true, "doc": true, "docx": true,
}

// Namer names content clusters. With a provider it asks the model first;
// the keyword fallback always produces a name.
type Namer struct {
	provider llm.LLMProvider
	timeout  time.Duration
	logger   logger.ILogger
}

func NewNamer(provider llm.LLMProvider, timeout time.Duration, log logger.ILogger) *Namer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Namer{provider: provider, timeout: timeout, logger: log}
}

// NameAll assigns a unique name to every cluster in place.
func (n *Namer) NameAll(ctx context.Context, clusters []ContentCluster) {
	used := make(map[string]int)
	for i := range clusters {
		name := n.Name(ctx, clusters[i].texts, i+1)
		clusters[i].Name = uniqueName(name, used)
	}
}

// Name returns a name for a group of texts; index numbers the final fallback.
func (n *Namer) Name(ctx context.Context, texts []string, index int) string {
	if name, ok := n.nameWithModel(ctx, texts); ok {
		return name
	}
	if name := KeywordName(strings.Join(texts, " ")); name != "" {
		return name
	}
	return fmt.Sprintf("Content Group %d", index)
}

func (n *Namer) nameWithModel(ctx context.Context, texts []string) (string, bool) {
	if n.provider == nil || len(texts) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Documents in this group:\n")
	for _, t := range texts {
		if b.Len() >= namingPromptChars {
			break
		}
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	prompt := b.String()
	if r := []rune(prompt); len(r) > namingPromptChars {
		prompt = string(r[:namingPromptChars])
	}

	nameCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	raw, err := llm.Instruct(nameCtx, n.provider, namingSystemPrompt, prompt, llm.WithMaxTokens(16))
	if err != nil {
		n.logger.Warn(logger.ModuleClusterer, "Cluster naming via model failed, using keywords", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}

	name := CleanModelName(raw)
	if !ValidName(name) {
		n.logger.Debug(logger.ModuleClusterer, "Model name rejected", map[string]interface{}{
			"raw": raw,
		})
		return "", false
	}
	return name, true
}

// CleanModelName keeps the first line of a model reply and strips quotes and
// surrounding punctuation.
func CleanModelName(raw string) string {
	name := strings.TrimSpace(raw)
	if i := strings.IndexAny(name, "\r\n"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '`'
	})
	name = strings.TrimPrefix(name, "Name: ")
	return strings.Join(strings.Fields(name), " ")
}

// ValidName accepts non-empty names under 50 characters of 1 to 6 words
// containing no generic term.
func ValidName(name string) bool {
	if name == "" || len([]rune(name)) >= maxNameRunes {
		return false
	}
	words := strings.Fields(name)
	if len(words) < 1 || len(words) > maxNameWords {
		return false
	}
	for _, w := range words {
		if genericNameTerms[strings.ToLower(strings.Trim(w, ",.&"))] {
			return false
		}
	}
	return true
}

// Keywords returns the top n keywords of text by frequency, ties broken
// alphabetically.
func Keywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(tok)) < 3 || keywordStopWords[tok] || genericNameTerms[tok] || isNumeric(tok) {
			continue
		}
		counts[tok]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// KeywordName composes a name from the top three keywords of text, or ""
// when it has none.
func KeywordName(text string) string {
	kw := Keywords(text, topKeywords)
	for i, w := range kw {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		kw[i] = string(r)
	}
	switch len(kw) {
	case 0:
		return ""
	case 1:
		return kw[0] + " Topics"
	case 2:
		return kw[0] + " & " + kw[1]
	default:
		return kw[0] + ", " + kw[1] + " & " + kw[2]
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func uniqueName(name string, used map[string]int) string {
	used[name]++
	if used[name] == 1 {
		return name
	}
	for {
		candidate := fmt.Sprintf("%s (%d)", name, used[name])
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
		used[name]++
	}
}
