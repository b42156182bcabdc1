package workflow

import (
	"slices"
	"strconv"
	"strings"

	"recibos/pkg/platform/textnorm"
)

// ViewButtonPayload is the quick-reply payload of the notification template.
const ViewButtonPayload = "VIEW_NOW"

// InboundEvent is one message received from the channel.
type InboundEvent struct {
	From          string
	Body          string
	ButtonText    string
	ButtonPayload string
}

// IsButton reports whether the event is the template's view button.
func (e InboundEvent) IsButton() bool {
	return e.ButtonPayload == ViewButtonPayload || strings.Contains(textnorm.Fold(e.ButtonText), "visualizar")
}

// IsEmpty reports an event with neither text nor a button.
func (e InboundEvent) IsEmpty() bool {
	return strings.TrimSpace(e.Body) == "" && strings.TrimSpace(e.ButtonText) == "" && strings.TrimSpace(e.ButtonPayload) == ""
}

func (e InboundEvent) kind() string {
	switch {
	case e.IsEmpty():
		return "empty"
	case e.IsButton():
		return "button"
	default:
		return "text"
	}
}

var (
	affirmatives  = []string{"si", "s", "ok", "dale", "ver", "verlo", "quiero", "yes", "visualizar", "si, visualizar", "1"}
	negatives     = []string{"no", "n", "cancelar", "despues", "luego", "ahora no", "2"}
	signWords     = []string{"1", "firmar", "firmo", "firma", "acepto", "conforme"}
	objectWords   = []string{"2", "observar", "observo", "objetar", "objeto", "rechazo", "no conforme"}
	undoWords     = []string{"1", "firmar", "firmo", "firma", "firmarlo", "acepto", "deshacer"}
	keepWords     = []string{"2", "mantener", "mantengo", "observar", "seguir"}
	menuWords     = []string{"menu", "recibos", "historial", "anteriores", "periodos", "otros"}
	moreWords     = []string{"mas", "ver mas", "siguiente", "siguientes"}
	trailingNoise = ".!¡¿?"
)

// normalize folds accents and case and drops surrounding punctuation.
func normalize(text string) string {
	return strings.Trim(textnorm.Fold(text), trailingNoise+" ")
}

func matchAny(folded string, words []string) bool {
	return slices.Contains(words, folded)
}

func isAffirmative(folded string) bool {
	return matchAny(folded, affirmatives) || strings.HasPrefix(folded, "si ")
}

func isNegative(folded string) bool {
	return matchAny(folded, negatives) || strings.HasPrefix(folded, "no ")
}

func isMenuKeyword(folded string) bool {
	return matchAny(folded, menuWords)
}

func isMore(folded string) bool {
	return matchAny(folded, moreWords)
}

// optionNumber parses "2", "2." or "opcion 2".
func optionNumber(folded string) (int, bool) {
	folded = strings.TrimSpace(strings.TrimPrefix(folded, "opcion"))
	n, err := strconv.Atoi(folded)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
