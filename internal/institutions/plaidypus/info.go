package plaidypus

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"instconnect/internal/connector"

	"github.com/titanous/json5"
)

// profile is the object embedded in the settings page's script markup.
type profile struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	Address []string `json:"address"`
}

func (e Extractor) ExtractInfo(ctx context.Context, session connector.Session) (connector.Info, error) {
	res, err := e.send(ctx, session, report_info, connector.Request{
		Method: http.MethodGet,
		Path:   pathProfile,
	})
	if err != nil {
		return connector.Info{}, err
	}
	switch res.StatusCode {
	case 200:
	case 401:
		return connector.Info{}, connector.InvalidCredentials(fmt.Errorf("profile page answered with status 401"))
	default:
		err := fmt.Errorf("profile page: unexpected status %d", res.StatusCode)
		e.tel.ReportWarning(report_info, err)
		return connector.Info{}, connector.InstitutionRequestError(err)
	}

	info, err := parseProfile(res.Body)
	if err != nil {
		e.tel.ReportBroken(report_info, err)
		return connector.Info{}, connector.InstitutionRequestError(err)
	}
	return info, nil
}

func parseProfile(body []byte) (connector.Info, error) {
	start := bytes.IndexByte(body, '{')
	end := bytes.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return connector.Info{}, fmt.Errorf("profile payload not found")
	}

	var p profile
	err := json5.Unmarshal(body[start:end+1], &p)
	if err != nil {
		return connector.Info{}, fmt.Errorf("decode profile payload: %w", err)
	}

	if p.Name == "" {
		return connector.Info{}, fmt.Errorf("profile is missing a name")
	}
	if p.Email == "" {
		return connector.Info{}, fmt.Errorf("profile is missing an email")
	}
	phone := strings.TrimPrefix(strings.TrimSpace(p.Phone), "+")
	if phone == "" {
		return connector.Info{}, fmt.Errorf("profile is missing a phone number")
	}
	address, err := extractAddress(p.Address)
	if err != nil {
		return connector.Info{}, err
	}

	return connector.Info{
		Names:        []string{p.Name},
		PhoneNumbers: []string{phone},
		Emails:       []string{p.Email},
		Addresses:    []connector.Address{address},
	}, nil
}

// extractAddress splits a two line address like
// ["123 Center Street", "Salt Lake City, UT 84102-1234"].
func extractAddress(lines []string) (connector.Address, error) {
	if len(lines) < 2 {
		return connector.Address{}, fmt.Errorf("address has %d lines, want 2", len(lines))
	}
	street := strings.TrimSpace(lines[0])

	city, stateZip, ok := strings.Cut(lines[1], ",")
	if !ok {
		return connector.Address{}, fmt.Errorf("address line %q has no comma", lines[1])
	}
	city = strings.TrimSpace(city)

	fields := strings.Fields(stateZip)
	if len(fields) < 2 {
		return connector.Address{}, fmt.Errorf("address line %q has no state and zip", lines[1])
	}
	state := fields[0]
	zip, _, _ := strings.Cut(fields[1], "-")

	if street == "" || city == "" || zip == "" {
		return connector.Address{}, fmt.Errorf("incomplete address %q", lines)
	}

	return connector.Address{
		Street: street,
		City:   city,
		State:  state,
		Zip:    zip,
	}, nil
}
