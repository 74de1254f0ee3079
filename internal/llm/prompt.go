package llm

import (
	"strings"
	"unicode/utf8"
)

// maxPromptOCRChars bounds the OCR text embedded in a prompt.
const maxPromptOCRChars = 6000

// BuildSystemPrompt instructs the model to answer with the receipt JSON
// document only. categories are the allowed product category values.
func BuildSystemPrompt(categories []string) string {
	parts := []string{
		"Jesteś asystentem, który odczytuje polskie paragony sklepowe.",
		"Zwróć WYŁĄCZNIE jeden obiekt JSON, bez komentarzy i bez bloków markdown.",
		`Struktura: {"store_name": string, "date": "YYYY-MM-DD", "total_amount": number, ` +
			`"items": [{"name": string, "quantity": number, "price": number, "total": number, "category": string}], ` +
			`"tax_id": string (opcjonalnie), "payment_method": string (opcjonalnie)}.`,
		"Wszystkie kwoty są liczbami dodatnimi z kropką jako separatorem dziesiętnym.",
		"Jeśli ilość nie jest podana, użyj 1.",
		"Lista items musi zawierać co najmniej jeden produkt.",
	}
	if len(categories) > 0 {
		parts = append(parts, "Pole category musi mieć jedną z wartości: "+strings.Join(categories, ", ")+". Jeśli nie masz pewności, użyj \"Inne\".")
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt embeds the OCR text, truncated on a rune boundary.
func BuildUserPrompt(ocrText string) string {
	txt := strings.TrimSpace(ocrText)
	var b strings.Builder
	b.WriteString("Tekst paragonu rozpoznany przez OCR:\n")
	if utf8.RuneCountInString(txt) > maxPromptOCRChars {
		b.WriteString(string([]rune(txt)[:maxPromptOCRChars]))
		b.WriteString("\n…(obcięto)")
	} else {
		b.WriteString(txt)
	}
	b.WriteString("\n\nZwróć dane paragonu w formacie JSON.")
	return b.String()
}
