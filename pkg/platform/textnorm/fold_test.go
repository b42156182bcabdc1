package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"  Sí,  VISUALIZAR ": "si, visualizar",
		"Teléfono":           "telefono",
		"Apellido y Nombre":  "apellido y nombre",
		"menú":               "menu",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), in)
	}
}
