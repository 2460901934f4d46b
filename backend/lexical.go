package backend

import "context"

// LexicalBackend is the guaranteed terminal fallback: it returns the zero
// vector for every input and can never fail, so a chain ending in it always
// produces some result.
type LexicalBackend struct {
	dims int
}

// NewLexical creates the terminal backend.
func NewLexical(dims int) *LexicalBackend {
	return &LexicalBackend{dims: dims}
}

func (b *LexicalBackend) Kind() Kind { return KindLexical }

func (b *LexicalBackend) Probe(context.Context) error { return nil }

func (b *LexicalBackend) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, b.dims), nil
}

func (b *LexicalBackend) Close() error { return nil }
