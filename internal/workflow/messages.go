package workflow

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Messages holds every text the workflow sends. Placeholders are {periodo},
// {nombre} and {opcion}.
type Messages struct {
	NotRegistered     string `yaml:"not_registered"`
	NoDocuments       string `yaml:"no_documents"`
	DocumentMissing   string `yaml:"document_missing"`
	ViewPrompt        string `yaml:"view_prompt"`
	ViewRepeat        string `yaml:"view_repeat"`
	ViewDeclined      string `yaml:"view_declined"`
	DocumentCaption   string `yaml:"document_caption"`
	SignOrObjectAgain string `yaml:"sign_or_object_again"`
	Signed            string `yaml:"signed"`
	Objected          string `yaml:"objected"`
	ObjectedCaption   string `yaml:"objected_caption"`
	UndoAgain         string `yaml:"undo_again"`
	ObjectionKept     string `yaml:"objection_kept"`
	AlreadySigned     string `yaml:"already_signed"`
	AlreadyAnswered   string `yaml:"already_answered"`
	MenuHeader        string `yaml:"menu_header"`
	MenuOption        string `yaml:"menu_option"`
	MenuMore          string `yaml:"menu_more"`
	MenuInvalid       string `yaml:"menu_invalid"`
	EmptyMessage      string `yaml:"empty_message"`
	SendFailed        string `yaml:"send_failed"`
	Busy              string `yaml:"busy"`
	Unavailable       string `yaml:"unavailable"`
	Broadcast         string `yaml:"broadcast"`
}

// DefaultMessages returns the es-AR texts.
func DefaultMessages() *Messages {
	return &Messages{
		NotRegistered:     "No encontramos tu número en el registro de empleados. Comunicate con Recursos Humanos para actualizarlo.",
		NoDocuments:       "Todavía no hay recibos disponibles para vos. Te avisamos cuando esté el próximo.",
		DocumentMissing:   "No encontramos tu recibo de {periodo}. Probá de nuevo más tarde o comunicate con Recursos Humanos.",
		ViewPrompt:        "Tenés disponible tu recibo de sueldo de {periodo}. ¿Querés verlo? Respondé SI o NO.",
		ViewRepeat:        "No entendí tu respuesta. ¿Querés ver tu recibo de {periodo}? Respondé SI o NO.",
		ViewDeclined:      "Listo. Cuando quieras ver tu recibo, escribinos.",
		DocumentCaption:   "Este es tu recibo de sueldo de {periodo}.\nRespondé 1 para FIRMAR o 2 para OBSERVAR.",
		SignOrObjectAgain: "Respondé 1 para FIRMAR o 2 para OBSERVAR tu recibo de {periodo}.",
		Signed:            "¡Gracias! Registramos la firma de tu recibo de {periodo}.",
		Objected:          "Registramos tu observación sobre el recibo de {periodo}. Recursos Humanos se va a comunicar con vos para revisarlo.",
		ObjectedCaption:   "Tu recibo de {periodo} tiene una observación registrada.\nRespondé 1 para FIRMARLO o 2 para MANTENER la observación.",
		UndoAgain:         "Respondé 1 para FIRMAR o 2 para MANTENER la observación de tu recibo de {periodo}.",
		ObjectionKept:     "Mantenemos tu observación sobre el recibo de {periodo}. Recursos Humanos se va a comunicar con vos.",
		AlreadySigned:     "Este es tu recibo de {periodo}. Ya está firmado, no hace falta que hagas nada más.",
		AlreadyAnswered:   "Tu recibo de {periodo} ya tiene una respuesta registrada.",
		MenuHeader:        "Elegí el período que querés ver:",
		MenuOption:        "{opcion}. {periodo}",
		MenuMore:          "{opcion}. Ver más",
		MenuInvalid:       "No entendí la opción.",
		EmptyMessage:      "Para ver tu recibo, escribí un mensaje o usá el botón de la plantilla.",
		SendFailed:        "No pudimos enviarte el recibo en este momento. Probá de nuevo en unos minutos.",
		Busy:              "Estamos procesando tu mensaje anterior. Probá de nuevo en unos segundos.",
		Unavailable:       "Tuvimos un problema para buscar tu recibo. Probá de nuevo en unos minutos.",
		Broadcast:         "Hola {nombre}, ya está disponible tu recibo de sueldo de {periodo}. Escribinos o tocá \"Visualizar\" para verlo.",
	}
}

// LoadMessages overlays the non-empty entries of a YAML file on the
// defaults. An empty path returns the defaults.
func LoadMessages(path string) (*Messages, error) {
	msgs := DefaultMessages()
	if path == "" {
		return msgs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	var override Messages
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse messages file: %w", err)
	}
	msgs.merge(&override)
	return msgs, nil
}

func (m *Messages) merge(o *Messages) {
	pairs := []struct{ dst, src *string }{
		{&m.NotRegistered, &o.NotRegistered},
		{&m.NoDocuments, &o.NoDocuments},
		{&m.DocumentMissing, &o.DocumentMissing},
		{&m.ViewPrompt, &o.ViewPrompt},
		{&m.ViewRepeat, &o.ViewRepeat},
		{&m.ViewDeclined, &o.ViewDeclined},
		{&m.DocumentCaption, &o.DocumentCaption},
		{&m.SignOrObjectAgain, &o.SignOrObjectAgain},
		{&m.Signed, &o.Signed},
		{&m.Objected, &o.Objected},
		{&m.ObjectedCaption, &o.ObjectedCaption},
		{&m.UndoAgain, &o.UndoAgain},
		{&m.ObjectionKept, &o.ObjectionKept},
		{&m.AlreadySigned, &o.AlreadySigned},
		{&m.AlreadyAnswered, &o.AlreadyAnswered},
		{&m.MenuHeader, &o.MenuHeader},
		{&m.MenuOption, &o.MenuOption},
		{&m.MenuMore, &o.MenuMore},
		{&m.MenuInvalid, &o.MenuInvalid},
		{&m.EmptyMessage, &o.EmptyMessage},
		{&m.SendFailed, &o.SendFailed},
		{&m.Busy, &o.Busy},
		{&m.Unavailable, &o.Unavailable},
		{&m.Broadcast, &o.Broadcast},
	}
	for _, p := range pairs {
		if strings.TrimSpace(*p.src) != "" {
			*p.dst = *p.src
		}
	}
}

// Render substitutes the placeholders in text.
func Render(text, period, name string) string {
	return strings.NewReplacer("{periodo}", period, "{nombre}", name).Replace(text)
}

func renderOption(text string, option int, period string) string {
	return strings.NewReplacer("{opcion}", strconv.Itoa(option), "{periodo}", period).Replace(text)
}
