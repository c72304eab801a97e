// Package prompt builds the system/user prompts for each assistant use
// case and validates language pairs.
package prompt

import (
	"errors"
	"fmt"
)

// Languages supported for translation, code -> display name.
var Languages = map[string]string{
	"fr": "Français",
	"en": "English",
	"ar": "العربية",
}

// RTLLanguages lists right-to-left language codes, used by the service
// descriptor so clients can set text direction.
var RTLLanguages = []string{"ar"}

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrSameLanguage        = errors.New("source and target languages must be different")
)

// Spec is a fully built generation request: system + user prompt plus
// sampling options.
type Spec struct {
	System      string
	Prompt      string
	Temperature float64
	TopP        float64
}

type pair struct{ source, target string }

// systemPrompts instruct the model to return only the translated text,
// in the target language's own register.
var systemPrompts = map[pair]string{
	{"fr", "en"}: "You are a translator. Translate the following French text to English. " +
		"Return ONLY the translated text, without any explanation, formatting, or additional content. " +
		"Preserve punctuation and tone.",
	{"fr", "ar"}: "أنت مترجم. ترجم النص الفرنسي التالي إلى العربية. أعد النص المترجم فقط، دون أي تفسير أو تنسيق أو محتوى إضافي. " +
		"احتفظ بعلامات الترقيم والنبرة.",
	{"en", "fr"}: "Tu es un traducteur. Traduis le texte anglais suivant en français. Retourne UNIQUEMENT le texte traduit, " +
		"sans explication, formatage ou contenu additionnel. Préserve la ponctuation et le ton.",
	{"en", "ar"}: "أنت مترجم. ترجم النص الإنجليزي التالي إلى العربية. أعد النص المترجم فقط، دون أي تفسير أو تنسيق أو محتوى إضافي. " +
		"احتفظ بعلامات الترقيم والنبرة.",
	{"ar", "fr"}: "Tu es un traducteur. Traduis le texte arabe suivant en français. Retourne UNIQUEMENT le texte traduit, sans explication, " +
		"formatage ou contenu additionnel. Préserve la ponctuation et le ton.",
	{"ar", "en"}: "You are a translator. Translate the following Arabic text to English. Return ONLY the translated text, " +
		"without any explanation, formatting, or additional content. Preserve punctuation and tone.",
}

// ValidatePair checks that both codes are supported and distinct.
func ValidatePair(source, target string) error {
	if _, ok := Languages[source]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, source)
	}
	if _, ok := Languages[target]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, target)
	}
	if source == target {
		return ErrSameLanguage
	}
	return nil
}

// Translation builds the prompt for translating plain text.
func Translation(text, source, target string) (Spec, error) {
	if err := ValidatePair(source, target); err != nil {
		return Spec{}, err
	}
	return Spec{
		System:      systemPrompts[pair{source, target}],
		Prompt:      text,
		Temperature: 0.3,
		TopP:        0.9,
	}, nil
}

// XMLTranslation builds the strict prompt used for XML segments: the
// output must be translated text only, with no markup added.
func XMLTranslation(text, source, target string) (Spec, error) {
	spec, err := Translation(text, source, target)
	if err != nil {
		return Spec{}, err
	}
	spec.System += " Never add XML tags, quotes, or markup of any kind around the translation."
	spec.Temperature = 0.2
	return spec, nil
}

// Correction asks for a corrected text plus explanations as JSON.
func Correction(text string) Spec {
	return Spec{
		System: "Tu es un correcteur orthographique et grammatical interne à DCI. Retourne uniquement du JSON valide.",
		Prompt: "Tu es un correcteur professionnel. Corrige le texte suivant en respectant la langue d'origine et le ton employé. " +
			"Retourne exclusivement un objet JSON respectant exactement cette structure :\n" +
			"{\n" +
			"  \"corrected_text\": \"...\",\n" +
			"  \"explanations\": [\"...\"]\n" +
			"}\n" +
			"La clé 'corrected_text' doit contenir le texte intégralement corrigé. " +
			"La clé 'explanations' doit être une liste décrivant brièvement chaque correction importante. " +
			"Indique qu'aucune correction n'a été nécessaire si le texte est déjà correct.\n\n" +
			"Texte à corriger :\n" + text,
		Temperature: 0.2,
		TopP:        0.9,
	}
}

// Reformulation asks for an improved rewrite plus highlights as JSON.
func Reformulation(text string) Spec {
	return Spec{
		System: "Tu es un assistant de rédaction interne à DCI. Fournis uniquement du JSON valide.",
		Prompt: "Tu es chargé de reformuler le texte suivant pour l'améliorer (fluidité, clarté, ton professionnel) tout en conservant le sens. " +
			"Retourne exclusivement un objet JSON avec la structure :\n" +
			"{\n" +
			"  \"reformulated_text\": \"...\",\n" +
			"  \"highlights\": [\"...\"]\n" +
			"}\n" +
			"La liste 'highlights' doit contenir quelques explications sur les changements importants.\n\n" +
			"Texte à reformuler :\n" + text,
		Temperature: 0.4,
		TopP:        0.9,
	}
}

// MeetingSummary asks for a structured meeting report as JSON.
func MeetingSummary(text string) Spec {
	return Spec{
		System: "Tu es l'assistant de compte rendu interne à DCI. Réponds uniquement avec du JSON valide.",
		Prompt: "À partir des notes de réunion suivantes, crée un compte rendu clair. " +
			"Retourne uniquement un JSON respectant la structure :\n" +
			"{\n" +
			"  \"summary\": \"...\",\n" +
			"  \"decisions\": [\"...\"],\n" +
			"  \"action_items\": [\"...\"]\n" +
			"}\n" +
			"Le résumé doit être concis (moins de 150 mots). Les décisions et les actions doivent être formulées en phrases courtes.\n\n" +
			"Notes de réunion :\n" + text,
		Temperature: 0.3,
		TopP:        0.9,
	}
}
