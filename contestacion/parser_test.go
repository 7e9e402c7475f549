package contestacion

import (
	"strings"
	"testing"
)

func TestParseBlocks(t *testing.T) {
	t.Run("roman numbered headings", func(t *testing.T) {
		raw := "I. HECHOS\nEl actor reclama el pago de 12.000 EUR.\n\nII. FUNDAMENTOS DE DERECHO\nArtículo 1101 del Código Civil."
		blocks := ParseBlocks(raw)

		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(blocks))
		}
		if blocks[0].Order != 1 || blocks[1].Order != 2 {
			t.Error("orders must be 1 and 2")
		}
		if blocks[0].Title != "HECHOS" {
			t.Errorf("first title %q", blocks[0].Title)
		}
		if blocks[0].Type != "hechos" || blocks[1].Type != "fundamentos" {
			t.Errorf("heading classification wrong: %q %q", blocks[0].Type, blocks[1].Type)
		}
		if !strings.Contains(blocks[0].Content, "12.000") {
			t.Errorf("content lost: %q", blocks[0].Content)
		}
		if blocks[0].ID == "" || blocks[0].ID == blocks[1].ID {
			t.Error("blocks need distinct ids")
		}
	})

	t.Run("arabic numbered headings", func(t *testing.T) {
		raw := "1.- Antecedentes\nTexto uno.\n2.- Pretensiones\nTexto dos.\n3.- Suplico\nTexto tres."
		blocks := ParseBlocks(raw)
		if len(blocks) != 3 {
			t.Fatalf("expected 3 blocks, got %d", len(blocks))
		}
		if blocks[2].Title != "Suplico" {
			t.Errorf("third title %q", blocks[2].Title)
		}
	})

	t.Run("bare all-caps section titles", func(t *testing.T) {
		raw := "HECHOS\nPrimero.\nFUNDAMENTOS DE DERECHO\nSegundo."
		blocks := ParseBlocks(raw)
		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(blocks))
		}
	})

	t.Run("unstructured text yields zero blocks", func(t *testing.T) {
		if blocks := ParseBlocks("texto corrido sin encabezados ni numeración"); len(blocks) != 0 {
			t.Errorf("expected zero blocks, got %d", len(blocks))
		}
	})

	t.Run("empty input yields zero blocks", func(t *testing.T) {
		if blocks := ParseBlocks("   \n\n  "); len(blocks) != 0 {
			t.Error("whitespace must not produce blocks")
		}
	})

	t.Run("html sources are converted first", func(t *testing.T) {
		raw := "<html><body><h1>I. HECHOS</h1><p>Uno.</p><h1>II. DERECHO</h1><p>Dos.</p></body></html>"
		blocks := ParseBlocks(raw)
		if len(blocks) != 2 {
			t.Fatalf("expected 2 blocks from html, got %d", len(blocks))
		}
	})
}
