// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrNoJSON is returned when a response holds neither a bare JSON document
	// nor a fenced JSON block.
	ErrNoJSON = errors.New("no JSON document found in response")
	// ErrAmbiguousJSON is returned when more than one fenced JSON block is present.
	ErrAmbiguousJSON = errors.New("response contains more than one fenced JSON block")
)

// Regex definitions use \x60 for backticks because Go raw strings cannot contain them.
// The language tag is captured separately so ```json and bare ``` blocks can be told apart.
var fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60([A-Za-z0-9_+-]*)[ \\t]*\\r?\\n?(.*?)\x60\x60\x60")

// FencedBlock is one markdown code block found in free text.
type FencedBlock struct {
	Lang    string
	Content string
}

// FencedBlocks returns every fenced code block in text, in order.
func FencedBlocks(text string) []FencedBlock {
	matches := fencedBlockRegex.FindAllStringSubmatch(text, -1)
	blocks := make([]FencedBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, FencedBlock{
			Lang:    strings.ToLower(m[1]),
			Content: strings.TrimSpace(m[2]),
		})
	}
	return blocks
}

// ExtractJSON pulls the JSON document out of a model response.
//
// A response that is itself valid JSON is returned as-is. Otherwise exactly one
// block fenced as ```json is expected; when no block carries a json tag, a
// single untagged block starting with '{' is accepted. The extracted text is
// not decoded further, so a broken document inside a well-formed fence is left
// for the caller's decoder to reject.
func ExtractJSON(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", ErrNoJSON
	}
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) &&
		jsoniter.ConfigCompatibleWithStandardLibrary.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	var tagged, untagged []string
	for _, b := range FencedBlocks(trimmed) {
		switch {
		case b.Lang == "json":
			tagged = append(tagged, b.Content)
		case b.Lang == "" && strings.HasPrefix(b.Content, "{"):
			untagged = append(untagged, b.Content)
		}
	}

	candidates := tagged
	if len(candidates) == 0 {
		candidates = untagged
	}
	switch len(candidates) {
	case 0:
		return "", ErrNoJSON
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w (found %d)", ErrAmbiguousJSON, len(candidates))
	}
}

// Truncate shortens s to at most maxLen bytes for log output, without
// splitting a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
