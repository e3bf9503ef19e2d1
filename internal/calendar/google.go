package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hireloop/scheduling/internal/model"
)

const googleProviderName = "google"

// GoogleProvider reads busy intervals through the Google Calendar FreeBusy
// API using the account's stored OAuth token.
type GoogleProvider struct {
	oauth *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{gcal.CalendarReadonlyScope},
		},
	}
}

func (g *GoogleProvider) Name() string { return googleProviderName }

func (g *GoogleProvider) BusySlots(ctx context.Context, account model.CalendarAccount, from, to time.Time) ([]model.BusyInterval, error) {
	var token oauth2.Token
	if err := json.Unmarshal(account.Token, &token); err != nil {
		return nil, fmt.Errorf("account %s: invalid token blob: %w", account.ID, err)
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, ErrTokenExpired
	}

	srv, err := gcal.NewService(ctx, option.WithTokenSource(g.oauth.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("account %s: calendar client: %w", account.ID, err)
	}

	calendarID := account.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	resp, err := srv.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("account %s: freebusy query: %w", account.ID, err)
	}

	var busy []model.BusyInterval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			busy = append(busy, model.BusyInterval{
				Start:  start.UTC(),
				End:    end.UTC(),
				Source: googleProviderName,
			})
		}
	}
	return busy, nil
}
