package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("hello world", 10)
	if len(ids) != 10 {
		t.Errorf("len(ids)=%d", len(ids))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS 101, got %d", ids[0])
	}
	if attn[0] != 1 {
		t.Error("attention[0] should be 1")
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b  c  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, _ := tok.Tokenize("one two three four five six", 4)
	if ids[0] != 101 || attn[3] != 1 {
		t.Errorf("ids=%v attn=%v", ids, attn)
	}
}

func TestNewTokenizer_Default(t *testing.T) {
	tok, err := NewTokenizer("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tok.(*SimpleTokenizer); !ok {
		t.Errorf("expected SimpleTokenizer, got %T", tok)
	}
	if _, err := NewTokenizer(t.TempDir() + "/missing.json"); err == nil {
		t.Error("expected error for missing tokenizer file")
	}
}

func TestPackBatch(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, types := PackBatch(tok, []string{"hello world", "bye"}, 8)
	if len(ids) != 16 || len(mask) != 16 || len(types) != 16 {
		t.Fatalf("lengths = %d/%d/%d, want 16", len(ids), len(mask), len(types))
	}
	for row, text := range []string{"hello world", "bye"} {
		want, wantMask, _ := tok.Tokenize(text, 8)
		for j := 0; j < 8; j++ {
			if ids[row*8+j] != want[j] || mask[row*8+j] != wantMask[j] {
				t.Fatalf("row %d col %d = %d/%d, want %d/%d", row, j, ids[row*8+j], mask[row*8+j], want[j], wantMask[j])
			}
		}
	}
	if ids, _, _ := PackBatch(tok, nil, 8); len(ids) != 0 {
		t.Errorf("empty batch packed %d ids", len(ids))
	}
}
