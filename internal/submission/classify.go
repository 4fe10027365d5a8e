package submission

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/wolfman30/insurance-leads-platform/internal/datastore"
	"github.com/wolfman30/insurance-leads-platform/internal/notify"
	"github.com/wolfman30/insurance-leads-platform/internal/relay"
)

const (
	msgSuccess     = "Obrigado! Recebemos sua solicitação e entraremos em contato em breve."
	msgInvalid     = "Por favor, corrija os campos destacados."
	msgRateLimited = "Muitas tentativas em pouco tempo. Aguarde um minuto e tente novamente."
	noteFallback   = "Lead recebido pelo canal alternativo; requer processamento manual."
)

var categoryMessages = map[Category]string{
	CategoryConnection: "Não conseguimos conectar ao nosso servidor. Verifique sua conexão e tente novamente.",
	CategoryDuplicate:  "Já existe uma solicitação com este e-mail. Nossa equipe entrará em contato em breve.",
	CategoryConfig:     "Nosso sistema está temporariamente indisponível.",
	CategoryGeneric:    "Não foi possível enviar sua solicitação no momento.",
}

// Contact is the human fallback offered with every delivery failure.
type Contact struct {
	Phone    string
	WhatsApp string
}

func (c Contact) callToAction() string {
	phone := strings.TrimSpace(c.Phone)
	whatsapp := strings.TrimSpace(c.WhatsApp)
	switch {
	case phone != "" && whatsapp != "":
		return fmt.Sprintf("Se preferir, ligue para %s ou fale conosco pelo WhatsApp %s.", phone, whatsapp)
	case phone != "":
		return fmt.Sprintf("Se preferir, ligue para %s.", phone)
	case whatsapp != "":
		return fmt.Sprintf("Se preferir, fale conosco pelo WhatsApp %s.", whatsapp)
	default:
		return "Tente novamente em alguns minutos."
	}
}

// failureMessage renders the templated text for a category.
func failureMessage(category Category, contact Contact) string {
	base, ok := categoryMessages[category]
	if !ok {
		base = categoryMessages[CategoryGeneric]
	}
	return base + " " + contact.callToAction()
}

// Classify maps the delivery errors to a category. Structured signals from
// either error win over text matching, and a duplicate beats a config issue,
// which beats a connection issue.
func Classify(errs ...error) Category {
	var present []error
	for _, err := range errs {
		if err != nil {
			present = append(present, err)
		}
	}
	if len(present) == 0 {
		return CategoryNone
	}

	for _, check := range []struct {
		category Category
		match    func(error) bool
	}{
		{CategoryDuplicate, isDuplicate},
		{CategoryConfig, isMisconfigured},
		{CategoryConnection, isConnection},
	} {
		for _, err := range present {
			if check.match(err) {
				return check.category
			}
		}
	}

	for _, err := range present {
		if category := classifyText(err.Error()); category != CategoryGeneric {
			return category
		}
	}
	return CategoryGeneric
}

func isDuplicate(err error) bool {
	var apiErr *datastore.APIError
	return errors.As(err, &apiErr) && apiErr.Duplicate()
}

func isMisconfigured(err error) bool {
	var apiErr *datastore.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Misconfigured()
	}
	var relayErr *relay.RelayError
	if errors.As(err, &relayErr) {
		switch relayErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
		return false
	}
	var provErr *notify.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, 530, 535:
			return true
		}
	}
	return false
}

func isConnection(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var textRules = []struct {
	category Category
	needles  []string
}{
	{CategoryDuplicate, []string{"duplicate", "already exists", "unique constraint", "23505", "já existe", "já cadastrado"}},
	{CategoryConfig, []string{"api key", "apikey", "jwt", "permission denied", "does not exist", "not configured", "unauthorized", "forbidden", "activation"}},
	{CategoryConnection, []string{"failed to fetch", "network", "cors", "connection refused", "connection reset", "no such host", "timeout", "timed out", "unreachable"}},
}

// classifyText is the last-resort translator for unstructured errors.
func classifyText(text string) Category {
	text = strings.ToLower(text)
	for _, rule := range textRules {
		for _, needle := range rule.needles {
			if strings.Contains(text, needle) {
				return rule.category
			}
		}
	}
	return CategoryGeneric
}
