package testutils

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// TestDataGenerator provides methods to create test data for integration tests
type TestDataGenerator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewTestDataGenerator creates a new test data generator with optional seed
func NewTestDataGenerator(seed ...int64) *TestDataGenerator {
	var s int64
	if len(seed) > 0 {
		s = seed[0]
	} else {
		s = time.Now().UnixNano()
	}
	return &TestDataGenerator{faker: gofakeit.New(uint64(s)), seed: s}
}

// Seed returns the seed the generator was built with, for reproducing a failure.
func (g *TestDataGenerator) Seed() int64 { return g.seed }

// GenerateUserIDs returns count distinct player ids.
func (g *TestDataGenerator) GenerateUserIDs(count int) []string {
	seen := make(map[string]bool, count)
	ids := make([]string, 0, count)
	for len(ids) < count {
		id := g.faker.Username() + g.faker.Numerify("###")
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// RoundName returns a display name for a template.
func (g *TestDataGenerator) RoundName() string {
	return g.faker.AppName() + " " + g.faker.RandomString([]string{"Sprint", "Showdown", "Last Call"})
}

// ActionBody returns a short qualifying comment.
func (g *TestDataGenerator) ActionBody() string {
	return g.faker.Sentence(5)
}
