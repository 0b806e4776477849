// Package chunker splits extracted document text into ordered,
// token-bounded chunks. A token is a whitespace-delimited word.
package chunker

import (
	"errors"
	"regexp"
	"strings"
)

// Piece is one chunk of text before it is embedded and stored.
type Piece struct {
	Number     int // 1-based
	Text       string
	TokenCount int
}

// Chunker packs whole sentences into chunks of at most maxTokens tokens.
// Sentences longer than maxTokens are split across consecutive chunks.
// The last overlap tokens of a chunk are repeated at the start of the next.
type Chunker struct {
	maxTokens int
	overlap   int
}

func New(maxTokens, overlap int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, errors.New("max tokens must be > 0")
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, errors.New("overlap must be >= 0 and < max tokens")
	}
	return &Chunker{maxTokens: maxTokens, overlap: overlap}, nil
}

func (c *Chunker) MaxTokens() int { return c.maxTokens }

// CountTokens returns the number of tokens in text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// Split is deterministic: identical input always yields identical pieces.
// Empty or whitespace-only text yields no pieces.
func (c *Chunker) Split(text string) []Piece {
	var (
		pieces []Piece
		cur    []string
		fresh  int // tokens in cur that were not carried over
	)
	emit := func() {
		if fresh == 0 {
			return
		}
		pieces = append(pieces, Piece{
			Number:     len(pieces) + 1,
			Text:       strings.Join(cur, " "),
			TokenCount: len(cur),
		})
		carry := min(c.overlap, len(cur))
		cur = append([]string(nil), cur[len(cur)-carry:]...)
		fresh = 0
	}

	for _, sentence := range sentences(text) {
		if len(cur)+len(sentence) > c.maxTokens {
			emit()
		}
		if len(cur)+len(sentence) <= c.maxTokens {
			cur = append(cur, sentence...)
			fresh += len(sentence)
			continue
		}
		for _, tok := range sentence {
			if len(cur) == c.maxTokens {
				emit()
			}
			cur = append(cur, tok)
			fresh++
		}
	}
	emit()
	return pieces
}

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// sentences returns the tokens of each sentence in order. A sentence ends
// at a token ending in '.', '!' or '?' (closing quotes and brackets
// allowed after it) or at a paragraph break.
func sentences(text string) [][]string {
	var out [][]string
	for _, para := range paragraphBreak.Split(text, -1) {
		var cur []string
		for _, tok := range strings.Fields(para) {
			cur = append(cur, tok)
			if endsSentence(tok) {
				out = append(out, cur)
				cur = nil
			}
		}
		if len(cur) > 0 {
			out = append(out, cur)
		}
	}
	return out
}

func endsSentence(tok string) bool {
	tok = strings.TrimRight(tok, `"')]}’”»`)
	if tok == "" {
		return false
	}
	switch tok[len(tok)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
