// Command srq20-smoke runs one login, submission and history round trip
// against a live backend and fails loudly when any step misbehaves.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"srq20.org/internal/apiclient"
	"srq20.org/internal/obs"
	"srq20.org/internal/questionnaire"
	"srq20.org/internal/results"
	"srq20.org/internal/session"
	"srq20.org/internal/storage"
)

func main() {
	log := obs.NewJSONLogger(os.Stderr, zapcore.InfoLevel)
	obs.SetLogger(log)

	apiURL := os.Getenv("SRQ20_SMOKE_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8000/api"
	}
	username := os.Getenv("SRQ20_SMOKE_USERNAME")
	password := os.Getenv("SRQ20_SMOKE_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("SRQ20_SMOKE_USERNAME and SRQ20_SMOKE_PASSWORD are required")
	}

	client, err := apiclient.New(apiclient.Config{BaseURL: apiURL, Timeout: 10 * time.Second})
	if err != nil {
		log.Fatal("build client", zap.Error(err))
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state := storage.NewMemory()
	sess, err := session.New(ctx, state, client)
	if err != nil {
		log.Fatal("session", zap.Error(err))
	}
	if err := sess.Login(ctx, username, password); err != nil {
		log.Fatal("login", zap.String("api_url", apiURL), zap.Error(err))
	}

	store := results.New(state)
	engine := questionnaire.New(client, store)
	qs, err := engine.LoadQuestions(ctx)
	if err != nil {
		log.Fatal("load questions", zap.Error(err))
	}
	if len(qs) == 0 {
		log.Fatal("backend returned no questions")
	}
	for _, q := range qs {
		if err := engine.RecordAnswer(q.ID, false); err != nil {
			log.Fatal("record answer", zap.Int64("question", q.ID), zap.Error(err))
		}
	}

	res, err := engine.Submit(ctx)
	if err != nil {
		log.Fatal("submit", zap.Error(err))
	}
	if res.Assessment.Score != 0 || res.Assessment.Band != questionnaire.BandNone {
		log.Fatal("unexpected score for an all-no submission",
			zap.Int("score", res.Assessment.Score),
			zap.String("band", string(res.Assessment.Band)))
	}

	snap, err := store.Load(ctx)
	if err != nil || snap.Result.Assessment.ID != res.Assessment.ID {
		log.Fatal("result was not cached", zap.Error(err))
	}

	history, err := engine.LoadHistory(ctx, "")
	if err != nil {
		log.Fatal("history", zap.Error(err))
	}
	if history.Count == 0 {
		log.Fatal("history is empty after a submission")
	}

	if err := sess.Logout(ctx); err != nil {
		log.Fatal("logout", zap.Error(err))
	}
	if sess.IsAuthenticated() {
		log.Fatal("session still authenticated after logout")
	}

	fmt.Printf("✅ srq20 smoke test passed: assessment=%d history=%d\n", res.Assessment.ID, history.Count)
}
