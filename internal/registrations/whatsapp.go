package registrations

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoPhone is returned when a participant has no usable phone number.
var ErrNoPhone = errors.New("participant has no phone number")

// WhatsAppLink builds a wa.me click-to-chat link. Numbers with 11 digits or
// fewer are treated as national and get countryCode prepended.
func WhatsAppLink(phone, countryCode, message string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := strings.TrimLeft(digits.String(), "0")
	if len(number) < 8 {
		return "", ErrNoPhone
	}
	if len(number) <= 11 {
		number = countryCode + number
	}
	return fmt.Sprintf("https://wa.me/%s?text=%s", number, url.QueryEscape(message)), nil
}

// QRPageURL is the public page that shows a participant's QR code.
func QRPageURL(publicBaseURL, scanCode string) string {
	return publicBaseURL + "/qrcode/" + url.PathEscape(scanCode)
}
