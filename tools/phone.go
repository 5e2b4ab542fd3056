package tools

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// NormalizeWhatsAppTo normaliza um telefone para o formato aceito pelo WhatsApp Cloud API
// (apenas dígitos, em formato internacional, sem '+').
//
// - remove tudo que não é dígito e o prefixo internacional "00"
// - número local de 10 dígitos recebe countryCode (ex: "91")
// - E.164 limita o total a 15 dígitos
func NormalizeWhatsAppTo(raw, countryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty phone")
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	phone := strings.TrimPrefix(b.String(), "00")
	phone = strings.TrimLeft(phone, "0")

	if len(phone) == 10 && countryCode != "" {
		phone = strings.TrimPrefix(countryCode, "+") + phone
	}

	if len(phone) < 11 || len(phone) > 15 {
		return "", errors.Errorf("invalid phone length: %d", len(phone))
	}
	return phone, nil
}
