// campus-client drives a running server through the main flow: sign up,
// report an issue, then read the reward state and the leaderboard.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/campusfix/pkg/models"
)

var defaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	},
}

type client struct {
	base  string
	token string
}

func (c *client) call(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := defaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, res.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func main() {
	base := flag.String("addr", "http://localhost:8080", "server base URL")
	reports := flag.Int("reports", 3, "issues to report")
	flag.Parse()

	ctx := context.Background()
	c := &client{base: *base}

	var auth struct {
		Token   string             `json:"token"`
		Profile models.UserProfile `json:"profile"`
	}
	email := "dev-" + uuid.NewString()[:8] + "@campus.edu"
	if err := c.call(ctx, http.MethodPost, "/v1/auth/signup", map[string]string{
		"name": "Dev Student", "email": email, "password": "dev-password",
	}, &auth); err != nil {
		log.Fatal(err)
	}
	c.token = auth.Token
	fmt.Printf("signed up %s (%s)\n", auth.Profile.Email, auth.Profile.ID)

	for i := range *reports {
		var created struct {
			Issue   models.Issue `json:"issue"`
			Message string       `json:"message"`
		}
		draft := models.IssueDraft{
			Title:       fmt.Sprintf("Flickering light #%d", i+1),
			Description: "The ceiling light keeps flickering during lectures",
			Category:    "Electrical",
			Room:        "301",
			Building:    "A",
		}
		if err := c.call(ctx, http.MethodPost, "/v1/issues", draft, &created); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("reported %s: %s\n", created.Issue.ID, created.Message)
	}

	// Rewards may be applied by background workers.
	time.Sleep(time.Second)

	var g struct {
		Gamification models.UserGamification `json:"gamification"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/gamification", nil, &g); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("points=%d level=%d streak=%d badges=%d reported=%d\n",
		g.Gamification.Points, g.Gamification.Level, g.Gamification.Streak,
		len(g.Gamification.Badges), g.Gamification.TotalIssuesReported)

	var lb struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/gamification/leaderboard?limit=5", nil, &lb); err != nil {
		log.Fatal(err)
	}
	for i, e := range lb.Leaderboard {
		fmt.Printf("%d. %s %d pts (level %d)\n", i+1, e.Name, e.Points, e.Level)
	}
}
