package backend

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer is a WordPiece tokenizer over a BERT-style vocab.txt file: one
// token per line, line number = token id, subword continuations prefixed
// with "##".
type Tokenizer struct {
	vocab     map[string]int32
	maxLength int
	clsID     int32
	sepID     int32
	unkID     int32
	padID     int32
}

// Encoding is a tokenized text ready for model inference. InputIDs always
// starts with [CLS] and the last real token is [SEP]; the rest is padding up
// to the tokenizer's max length.
type Encoding struct {
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32
	Length        int
	Truncated     bool
}

// maxWordpieceChars guards the subword loop against pathological inputs.
const maxWordpieceChars = 100

// LoadTokenizer reads a vocab file and resolves the special tokens. A vocab
// missing any of [CLS], [SEP], [UNK], [PAD] is rejected.
func LoadTokenizer(vocabPath string, maxLength int) (*Tokenizer, error) {
	if maxLength < 3 {
		return nil, fmt.Errorf("max length %d leaves no room for tokens", maxLength)
	}

	file, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer file.Close()

	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(file)
	var id int32
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if token == "" {
			id++
			continue
		}
		vocab[token] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}

	t := &Tokenizer{vocab: vocab, maxLength: maxLength}
	for _, special := range []struct {
		name string
		dst  *int32
	}{
		{"[CLS]", &t.clsID},
		{"[SEP]", &t.sepID},
		{"[UNK]", &t.unkID},
		{"[PAD]", &t.padID},
	} {
		tokID, ok := vocab[special.name]
		if !ok {
			return nil, fmt.Errorf("vocab missing special token %s", special.name)
		}
		*special.dst = tokID
	}

	return t, nil
}

// MaxLength returns the padded sequence length every encoding has.
func (t *Tokenizer) MaxLength() int { return t.maxLength }

// Encode tokenizes text, truncating to the max length and always including
// the [CLS]/[SEP] markers.
func (t *Tokenizer) Encode(text string) *Encoding {
	ids := make([]int32, 0, t.maxLength)
	ids = append(ids, t.clsID)

	truncated := false
	for _, word := range basicTokenize(text) {
		pieces := t.wordpiece(word)
		if len(ids)+len(pieces) > t.maxLength-1 {
			room := t.maxLength - 1 - len(ids)
			ids = append(ids, pieces[:room]...)
			truncated = true
			break
		}
		ids = append(ids, pieces...)
	}
	ids = append(ids, t.sepID)

	length := len(ids)
	mask := make([]int32, t.maxLength)
	for i := 0; i < length; i++ {
		mask[i] = 1
	}
	for len(ids) < t.maxLength {
		ids = append(ids, t.padID)
	}

	return &Encoding{
		InputIDs:      ids,
		AttentionMask: mask,
		TokenTypeIDs:  make([]int32, t.maxLength),
		Length:        length,
		Truncated:     truncated,
	}
}

// wordpiece splits one lowercase word into subword ids using greedy
// longest-match-first, falling back to [UNK] when no prefix matches.
func (t *Tokenizer) wordpiece(word string) []int32 {
	if len(word) > maxWordpieceChars {
		return []int32{t.unkID}
	}

	var pieces []int32
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		var match int32 = -1
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				match = id
				break
			}
			end--
		}
		if match < 0 {
			return []int32{t.unkID}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// basicTokenize lowercases, strips accents-free punctuation into standalone
// tokens, and splits on whitespace.
func basicTokenize(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}
