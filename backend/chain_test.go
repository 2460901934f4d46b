package backend

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestBuildChain(t *testing.T) {
	settings := Settings{Dimensions: 8, MaxLength: 16}

	t.Run("full chain", func(t *testing.T) {
		settings := settings
		settings.RemoteBaseURL = "http://embed.internal:8091"
		chain := BuildChain(settings, true, true, zap.NewNop())

		want := []Kind{KindONNXCUDA, KindONNXSIMD, KindONNXCPU, KindHash, KindRemote, KindLexical}
		if len(chain) != len(want) {
			t.Fatalf("expected %d entries, got %d", len(want), len(chain))
		}
		for i, kind := range want {
			if chain[i].Kind() != kind {
				t.Fatalf("position %d: expected %s, got %s", i, kind, chain[i].Kind())
			}
		}
	})

	t.Run("accelerators and remote disabled", func(t *testing.T) {
		chain := BuildChain(settings, false, false, zap.NewNop())
		want := []Kind{KindONNXCPU, KindHash, KindLexical}
		if len(chain) != len(want) {
			t.Fatalf("expected %d entries, got %d", len(want), len(chain))
		}
		for i, kind := range want {
			if chain[i].Kind() != kind {
				t.Fatalf("position %d: expected %s, got %s", i, kind, chain[i].Kind())
			}
		}
	})

	t.Run("always terminates with lexical", func(t *testing.T) {
		chain := BuildChain(settings, true, false, zap.NewNop())
		if chain[len(chain)-1].Kind() != KindLexical {
			t.Fatal("chain must end with the lexical terminal")
		}
	})
}

func TestLexicalBackend(t *testing.T) {
	b := NewLexical(6)

	if err := b.Probe(context.Background()); err != nil {
		t.Fatalf("lexical probe must never fail, got %v", err)
	}

	vec, err := b.Embed(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("lexical embed must never fail, got %v", err)
	}
	if len(vec) != 6 {
		t.Fatalf("expected 6 dimensions, got %d", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("lexical backend must return the zero vector")
		}
	}
	if b.Kind().Semantic() {
		t.Fatal("lexical kind must not be semantic")
	}
}

func TestKindSemantic(t *testing.T) {
	for _, kind := range []Kind{KindONNXCUDA, KindONNXSIMD, KindONNXCPU, KindHash, KindRemote} {
		if !kind.Semantic() {
			t.Fatalf("%s should be semantic", kind)
		}
	}
	if KindLexical.Semantic() {
		t.Fatal("lexical should not be semantic")
	}
}
