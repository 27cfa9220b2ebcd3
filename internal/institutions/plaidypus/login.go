package plaidypus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"instconnect/internal/connector"
	"instconnect/pkg/htmlutil"
	"instconnect/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
)

// institutions ask follow-up questions, but never more than this
const maxChallengeRounds = 3

func (e Extractor) Login(ctx context.Context, creds connector.Credentials) (connector.Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, connector.InvalidCredentials(fmt.Errorf("username and password are required"))
	}

	session, err := e.client.NewSession()
	if err != nil {
		e.tel.ReportBroken(report_login, fmt.Errorf("new session: %w", err))
		return nil, connector.InstitutionRequestError(err)
	}

	res, err := e.send(ctx, session, report_login, connector.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Form: map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		},
	})
	if err != nil {
		return nil, err
	}
	if !res.IsRedirect() {
		return nil, connector.InvalidCredentials(fmt.Errorf("login rejected with status %d", res.StatusCode))
	}

	location := res.Location()
	for round := 0; e.isChallenge(location); round++ {
		if round == maxChallengeRounds {
			return nil, connector.InvalidCredentials(fmt.Errorf("still challenged after %d answers", round))
		}
		location, err = e.answerChallenge(ctx, session, creds.Challenges)
		if err != nil {
			return nil, err
		}
	}

	e.tel.ReportDebug("login accepted")
	return session, nil
}

// isChallenge reports whether a redirect location points at the challenge
// endpoint.
func (e Extractor) isChallenge(location string) bool {
	if location == "" {
		return false
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	resolved := e.client.BaseUrl().ResolveReference(u)

	segments := strings.Split(strings.Trim(resolved.Path, "/"), "/")
	return segments[len(segments)-1] == pathChallenge
}

type challenge struct {
	question string
	index    string
}

func parseChallenge(doc *goquery.Document) (challenge, error) {
	question := htmlutil.SelectionText(doc.Find(".input-group p").First())
	if question == "" {
		return challenge{}, fmt.Errorf("challenge question not found")
	}
	index, ok := doc.Find(`[name="mfa_index"]`).First().Attr("value")
	if !ok {
		return challenge{}, fmt.Errorf("challenge index not found")
	}
	return challenge{question: question, index: index}, nil
}

// matchChallengeAnswer looks the question up exactly, then ignoring case and
// whitespace. Similar questions never match.
func matchChallengeAnswer(question string, answers map[string]string) (string, bool) {
	if answer, ok := answers[question]; ok {
		return answer, true
	}

	candidates := make([]string, 0, len(answers))
	for q := range answers {
		candidates = append(candidates, q)
	}
	slices.Sort(candidates)

	normalized := textutil.NormalizeName(question)
	for _, q := range candidates {
		if textutil.NormalizeName(q) == normalized {
			return answers[q], true
		}
	}

	return "", false
}

// answerChallenge answers the pending challenge and returns where the
// institution redirects next, empty when it does not.
func (e Extractor) answerChallenge(ctx context.Context, session connector.Session, answers map[string]string) (string, error) {
	doc, err := e.fetchPage(ctx, session, report_login_challenge, connector.Request{
		Method: http.MethodGet,
		Path:   pathChallenge,
	})
	if err != nil {
		return "", err
	}

	c, err := parseChallenge(doc)
	if err != nil {
		e.tel.ReportBroken(report_login_challenge, err)
		return "", connector.InstitutionRequestError(err)
	}
	answer, ok := matchChallengeAnswer(c.question, answers)
	if !ok {
		return "", connector.InvalidCredentials(fmt.Errorf("no answer for challenge question %q", c.question))
	}

	res, err := e.send(ctx, session, report_login_challenge, connector.Request{
		Method: http.MethodPost,
		Path:   pathChallenge,
		Form: map[string]string{
			"answer":    answer,
			"mfa_index": c.index,
		},
	})
	if err != nil {
		return "", err
	}

	switch {
	case res.StatusCode == 401 || res.StatusCode == 403:
		return "", connector.InvalidCredentials(fmt.Errorf("challenge answer rejected with status %d", res.StatusCode))
	case res.IsRedirect():
		return res.Location(), nil
	case res.StatusCode >= 200 && res.StatusCode < 300:
		// a wrong answer may render the challenge form again
		if rendersChallenge(res.Body) {
			return "", connector.InvalidCredentials(fmt.Errorf("challenge answer not accepted"))
		}
		return "", nil
	default:
		err := fmt.Errorf("challenge answer: unexpected status %d", res.StatusCode)
		e.tel.ReportWarning(report_login_challenge, err)
		return "", connector.InstitutionRequestError(err)
	}
}

func rendersChallenge(body []byte) bool {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return false
	}
	return doc.Find(`[name="mfa_index"]`).Length() > 0
}
