package handoff

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

func sampleSetup() Setup {
	return Setup{
		Role:  "Backend Developer",
		Level: questions.LevelIntermediate,
		Questions: []questions.Question{
			{Text: "Explain REST API principles.", Difficulty: questions.DifficultyMedium},
			{Text: "What is database indexing?", Difficulty: questions.DifficultyMedium},
		},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) err = %v, want ErrNotFound", err)
	}

	want := sampleSetup()
	if err := s.Save(ctx, id, want); err != nil {
		t.Fatalf("Save() err = %v", err)
	}
	got, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(after delete) err = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesQuestions(t *testing.T) {
	s := NewMemoryStore()
	setup := sampleSetup()
	s.Save(context.Background(), "a", setup)
	setup.Questions[0].Text = "mutated"

	got, _ := s.Load(context.Background(), "a")
	if got.Questions[0].Text == "mutated" {
		t.Error("store shares the caller's slice")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, "test:handoff:", time.Minute))
}
