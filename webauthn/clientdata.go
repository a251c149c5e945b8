package webauthn

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Ceremony types carried in clientData.type.
const (
	ceremonyGet    = "webauthn.get"
	ceremonyCreate = "webauthn.create"
)

// clientData is the subset of the collected client data the relying party
// validates. Remaining fields (crossOrigin, tokenBinding) are ignored.
type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

func parseClientData(clientDataJSON []byte) (clientData, error) {
	var cd clientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return clientData{}, fmt.Errorf("parsing client data: %w", err)
	}
	return cd, nil
}

// check validates the common client data constraints shared by registration
// and authentication: ceremony type, challenge echo and, when an allow-list
// is configured, the origin.
func (cd clientData) check(ceremony, challenge string, allowedOrigins []string) error {
	if cd.Type != ceremony {
		return fmt.Errorf("%w: client data type %q, expected %q", ErrClientDataType, cd.Type, ceremony)
	}
	if cd.Challenge != challenge {
		return ErrChallengeMismatch
	}
	if len(allowedOrigins) > 0 {
		allowed := false
		for _, o := range allowedOrigins {
			if o == cd.Origin {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s", ErrOriginNotAllowed, cd.Origin)
		}
	}
	return nil
}

// rpID returns the relying-party identifier the credential is scoped to: the
// hostname of the client origin.
func (cd clientData) rpID() (string, error) {
	u, err := url.Parse(cd.Origin)
	if err != nil {
		return "", fmt.Errorf("parsing origin: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("origin %q has no hostname", cd.Origin)
	}
	return host, nil
}
